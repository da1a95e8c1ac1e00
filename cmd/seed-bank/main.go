package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/yourusername/trivia-supply/internal/config"
	"github.com/yourusername/trivia-supply/internal/domain/entity"
	pgRepo "github.com/yourusername/trivia-supply/internal/repository/postgres"
	"github.com/yourusername/trivia-supply/pkg/database"
)

// seedQuestion - запись исходного JSON-файла наполнения.
// Схема документа банка: QUESTION, CATEGORY, IMAGE, OPTION A/B/C, ANSWER, NUMBER.
type seedQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Image    string `json:"image"`
	OptionA  string `json:"option_a"`
	OptionB  string `json:"option_b"`
	OptionC  string `json:"option_c"`
	Answer   string `json:"answer"`
}

func main() {
	var (
		inputPath = flag.String("input", "questions.json", "путь к JSON-файлу вопросов (объект, ключ - номер)")
		batchSize = flag.Int("batch-size", 10, "размер партии банка")
	)
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Printf("Failed to read %s: %v", *inputPath, err)
		os.Exit(1)
	}

	var raw map[string]seedQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("Failed to parse %s: %v", *inputPath, err)
		os.Exit(1)
	}

	// Сортируем номера, чтобы назначение партий было воспроизводимым
	numbers := make([]string, 0, len(raw))
	for number := range raw {
		numbers = append(numbers, number)
	}
	sort.Strings(numbers)

	size := *batchSize
	if size <= 0 {
		size = 10
	}

	questions := make([]entity.Question, 0, len(numbers))
	skipped := 0
	for i, number := range numbers {
		s := raw[number]
		q := entity.Question{
			Number:       number,
			Batch:        i/size + 1,
			Category:     s.Category,
			Image:        s.Image,
			OptionA:      s.OptionA,
			OptionB:      s.OptionB,
			OptionC:      s.OptionC,
			Answer:       s.Answer,
			QuestionText: s.Question,
		}
		if !q.Valid() {
			log.Printf("[SeedBank] WARNING: Вопрос %s не прошел валидацию - пропускаем", number)
			skipped++
			continue
		}
		questions = append(questions, q)
	}

	bankRepo := pgRepo.NewBankRepo(db)
	inserted, err := bankRepo.InsertQuestions(context.Background(), questions)
	if err != nil {
		log.Printf("[SeedBank] Ошибка наполнения банка: %v", err)
		os.Exit(1)
	}

	log.Printf("[SeedBank] Готово: %d вопросов в файле, %d вставлено, %d пропущено, партий %d",
		len(raw), inserted, skipped, (len(questions)+size-1)/size)
}
