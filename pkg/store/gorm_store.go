package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"qeek/pkg/domain"
)

const migrateLockID int64 = 51135113

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory
// lock so concurrent replicas do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&QuestionModel{},
			&MessageModel{},
			&DiagnosisModel{},
			&ResourceModel{},
			&UserModel{},
			&FeedbackModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM message_models m
				WHERE NOT EXISTS (SELECT 1 FROM question_models q WHERE q.id = m.question_id);
				DELETE FROM diagnosis_models d
				WHERE NOT EXISTS (SELECT 1 FROM question_models q WHERE q.id = d.question_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_question_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_question_id_fkey
					FOREIGN KEY (question_id) REFERENCES question_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'diagnosis_models'
					AND constraint_name = 'diagnosis_models_question_id_fkey'
				) THEN
					ALTER TABLE diagnosis_models
					ADD CONSTRAINT diagnosis_models_question_id_fkey
					FOREIGN KEY (question_id) REFERENCES question_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure question foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateQuestion inserts a new question row.
func (s *GormStore) CreateQuestion(q domain.Question) error {
	model := questionToModel(q)
	return s.db.Create(&model).Error
}

// GetQuestion retrieves a question.
func (s *GormStore) GetQuestion(id string) (domain.Question, bool, error) {
	var model QuestionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Question{}, false, nil
		}
		return domain.Question{}, false, err
	}
	return questionFromModel(model), true, nil
}

// ListQuestions returns questions newest first, optionally filtered to
// bookmarked ones.
func (s *GormStore) ListQuestions(bookmarkedOnly bool) ([]domain.Question, error) {
	tx := s.db.Order("created_at DESC")
	if bookmarkedOnly {
		tx = tx.Where("bookmarked = ?", true)
	}
	var models []QuestionModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Question, 0, len(models))
	for _, m := range models {
		res = append(res, questionFromModel(m))
	}
	return res, nil
}

// SetBookmarked updates the bookmark flag and returns the fresh row.
func (s *GormStore) SetBookmarked(id string, bookmarked bool) (domain.Question, error) {
	if err := s.db.Model(&QuestionModel{}).
		Where("id = ?", id).
		Update("bookmarked", bookmarked).Error; err != nil {
		return domain.Question{}, err
	}
	q, ok, err := s.GetQuestion(id)
	if err != nil {
		return domain.Question{}, err
	}
	if !ok {
		return domain.Question{}, fmt.Errorf("question %s not found", id)
	}
	return q, nil
}

// SetQuestionScore denormalizes the latest diagnosis score onto the question.
func (s *GormStore) SetQuestionScore(id string, score int) error {
	return s.db.Model(&QuestionModel{}).
		Where("id = ?", id).
		Update("score", score).Error
}

// DeleteQuestion removes the question with its messages and diagnoses.
func (s *GormStore) DeleteQuestion(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "question_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&DiagnosisModel{}, "question_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&QuestionModel{}, "id = ?", id).Error
	})
}

// AppendMessage records a message.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// ListMessages returns a question's messages in chronological order.
func (s *GormStore) ListMessages(questionID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.Where("question_id = ?", questionID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

// SaveDiagnosis inserts a diagnosis row.
func (s *GormStore) SaveDiagnosis(d domain.Diagnosis) error {
	model, err := diagnosisToModel(d)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// LatestDiagnosis returns the newest diagnosis for a question.
func (s *GormStore) LatestDiagnosis(questionID string) (domain.Diagnosis, bool, error) {
	var model DiagnosisModel
	if err := s.db.Where("question_id = ?", questionID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Diagnosis{}, false, nil
		}
		return domain.Diagnosis{}, false, err
	}
	return diagnosisFromModel(model), true, nil
}

// CountDiagnoses returns how many diagnosis rows exist for a question.
func (s *GormStore) CountDiagnoses(questionID string) (int, error) {
	var count int64
	if err := s.db.Model(&DiagnosisModel{}).
		Where("question_id = ?", questionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListResources returns the catalog ordered by id.
func (s *GormStore) ListResources() ([]domain.Resource, error) {
	var models []ResourceModel
	if err := s.db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Resource, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Resource(m))
	}
	return res, nil
}

// SaveUser registers a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := UserModel(u)
	return s.db.Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return domain.User(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return domain.User(model), true, nil
}

// SaveFeedback inserts a feedback row.
func (s *GormStore) SaveFeedback(f domain.Feedback) error {
	model := feedbackToModel(f)
	return s.db.Create(&model).Error
}

// ExecSQL runs raw SQL. Seeding only.
func (s *GormStore) ExecSQL(sqlText string) error {
	return s.db.Exec(sqlText).Error
}

func questionToModel(q domain.Question) QuestionModel {
	var userID *string
	if strings.TrimSpace(q.UserID) != "" {
		value := strings.TrimSpace(q.UserID)
		userID = &value
	}
	return QuestionModel{
		ID:         q.ID,
		Title:      q.Title,
		UserID:     userID,
		Score:      q.Score,
		Bookmarked: q.Bookmarked,
		CreatedAt:  q.CreatedAt,
	}
}

func questionFromModel(m QuestionModel) domain.Question {
	userID := ""
	if m.UserID != nil {
		userID = *m.UserID
	}
	return domain.Question{
		ID:         m.ID,
		Title:      m.Title,
		UserID:     userID,
		Score:      m.Score,
		Bookmarked: m.Bookmarked,
		CreatedAt:  m.CreatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:         msg.ID,
		QuestionID: msg.QuestionID,
		Sender:     string(msg.Sender),
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:         m.ID,
		QuestionID: m.QuestionID,
		Sender:     domain.Sender(m.Sender),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

func diagnosisToModel(d domain.Diagnosis) (DiagnosisModel, error) {
	classification, err := json.Marshal(d.Classification)
	if err != nil {
		return DiagnosisModel{}, err
	}
	weight, err := json.Marshal(d.Weight)
	if err != nil {
		return DiagnosisModel{}, err
	}
	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return DiagnosisModel{}, err
	}
	return DiagnosisModel{
		ID:             d.ID,
		QuestionID:     d.QuestionID,
		Classification: classification,
		Weight:         weight,
		Score:          d.Score,
		Summary:        d.Summary,
		Reasons:        reasons,
		CreatedAt:      d.CreatedAt,
	}, nil
}

func diagnosisFromModel(m DiagnosisModel) domain.Diagnosis {
	var classification []string
	var weight []int
	var reasons []string
	_ = json.Unmarshal(m.Classification, &classification)
	_ = json.Unmarshal(m.Weight, &weight)
	_ = json.Unmarshal(m.Reasons, &reasons)
	return domain.Diagnosis{
		ID:             m.ID,
		QuestionID:     m.QuestionID,
		Classification: classification,
		Weight:         weight,
		Score:          m.Score,
		Summary:        m.Summary,
		Reasons:        reasons,
		CreatedAt:      m.CreatedAt,
	}
}

func feedbackToModel(f domain.Feedback) FeedbackModel {
	var userID *string
	if strings.TrimSpace(f.UserID) != "" {
		value := strings.TrimSpace(f.UserID)
		userID = &value
	}
	return FeedbackModel{
		ID:        f.ID,
		Content:   f.Content,
		UserID:    userID,
		CreatedAt: f.CreatedAt,
	}
}
