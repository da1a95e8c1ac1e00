package handler

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/trivia-supply/internal/domain/entity"
	"github.com/yourusername/trivia-supply/internal/domain/repository"
)

// Размер партии по умолчанию при импорте без колонки BATCH
const defaultImportBatchSize = 10

// AdminHandler обрабатывает служебные операции над банком вопросов
type AdminHandler struct {
	bankRepo repository.QuestionBankRepository
}

// NewAdminHandler создает новый административный обработчик
func NewAdminHandler(bankRepo repository.QuestionBankRepository) *AdminHandler {
	return &AdminHandler{bankRepo: bankRepo}
}

// BankStats возвращает статистику банка вопросов
func (h *AdminHandler) BankStats(c *gin.Context) {
	total, batches, byBatch, err := h.bankRepo.BankStats(c.Request.Context())
	if err != nil {
		log.Printf("[AdminHandler] Ошибка чтения статистики банка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read bank stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"batches":  batches,
		"by_batch": byBatch,
	})
}

// ImportBankXLSX импортирует вопросы банка из xlsx-файла.
// Ожидаемые колонки: NUMBER, QUESTION, CATEGORY, IMAGE, OPTION A, OPTION B,
// OPTION C, ANSWER и опционально BATCH. Без колонки BATCH партии назначаются
// последовательно кусками по batch_size. Дубликаты номеров пропускаются.
func (h *AdminHandler) ImportBankXLSX(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	batchSize := defaultImportBatchSize
	if raw := c.Query("batch_size"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch_size"})
			return
		}
		batchSize = parsed
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid xlsx file"})
		return
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "xlsx file has no sheets"})
		return
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "xlsx sheet is empty"})
		return
	}

	// Заголовки - первая строка, сопоставление без учета регистра
	columns := make(map[string]int)
	for i, name := range rows[0] {
		columns[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	questions := make([]entity.Question, 0, len(rows)-1)
	skipped := 0
	for i, row := range rows[1:] {
		q := entity.Question{
			Number:       cell(row, "NUMBER"),
			Category:     cell(row, "CATEGORY"),
			Image:        cell(row, "IMAGE"),
			OptionA:      cell(row, "OPTION A"),
			OptionB:      cell(row, "OPTION B"),
			OptionC:      cell(row, "OPTION C"),
			Answer:       cell(row, "ANSWER"),
			QuestionText: cell(row, "QUESTION"),
		}

		if rawBatch := cell(row, "BATCH"); rawBatch != "" {
			if batch, batchErr := strconv.Atoi(rawBatch); batchErr == nil && batch > 0 {
				q.Batch = batch
			}
		}
		if q.Batch == 0 {
			q.Batch = len(questions)/batchSize + 1
		}

		if !q.Valid() {
			log.Printf("[AdminHandler] WARNING: Строка %d импорта не прошла валидацию - пропускаем", i+2)
			skipped++
			continue
		}
		questions = append(questions, q)
	}

	inserted, err := h.bankRepo.InsertQuestions(c.Request.Context(), questions)
	if err != nil {
		log.Printf("[AdminHandler] Ошибка импорта %d вопросов: %v", len(questions), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import questions"})
		return
	}

	log.Printf("[AdminHandler] Импорт завершен: %d строк, %d вставлено, %d пропущено",
		len(rows)-1, inserted, skipped)

	c.JSON(http.StatusOK, gin.H{
		"rows":     len(rows) - 1,
		"inserted": inserted,
		"skipped":  skipped,
	})
}
