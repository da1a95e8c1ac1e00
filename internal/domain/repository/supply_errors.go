package repository

import "errors"

// Ошибки подсистемы снабжения вопросами
var (
	// ErrDuplicateQuestion возвращается при вставке вопроса с уже занятым
	// номером. Не фатальна: вызывающий трактует как "уже есть, пропускаем".
	ErrDuplicateQuestion = errors.New("question with this number already exists")

	// ErrNoQuestionAvailable возвращается, когда локальный кеш пуст и
	// вопрос отдать нечем. Для игрока это отдельное видимое состояние,
	// а не сбой.
	ErrNoQuestionAvailable = errors.New("no question currently available")

	// ErrSetExhausted возвращается, когда в одиночном режиме осталось
	// меньше вопросов, чем запрошено на раунд. Ожидаемое терминальное
	// состояние, предлагающее игроку сброс журнала.
	ErrSetExhausted = errors.New("single-player question set exhausted")

	// ErrRefillInProgress сигнализирует, что пополнение для игрока уже идет;
	// повторный триггер игнорируется, а не запускает второй цикл.
	ErrRefillInProgress = errors.New("refill already in progress")
)
