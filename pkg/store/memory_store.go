package store

import (
	"fmt"
	"sort"
	"sync"

	"qeek/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests and local
// development without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	order     []string
	messages  map[string][]domain.Message
	diagnoses map[string][]domain.Diagnosis
	resources []domain.Resource
	users     map[string]domain.User
	emails    map[string]string // email -> user ID
	feedback  []domain.Feedback
	executed  []string // raw SQL statements, recorded for inspection
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions: make(map[string]domain.Question),
		messages:  make(map[string][]domain.Message),
		diagnoses: make(map[string][]domain.Diagnosis),
		users:     make(map[string]domain.User),
		emails:    make(map[string]string),
	}
}

func (m *MemoryStore) CreateQuestion(q domain.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.questions[q.ID]; exists {
		return fmt.Errorf("question %s already exists", q.ID)
	}
	m.questions[q.ID] = q
	m.order = append(m.order, q.ID)
	return nil
}

func (m *MemoryStore) GetQuestion(id string) (domain.Question, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	return q, ok, nil
}

func (m *MemoryStore) ListQuestions(bookmarkedOnly bool) ([]domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Question, 0, len(m.order))
	// newest first
	for i := len(m.order) - 1; i >= 0; i-- {
		q, ok := m.questions[m.order[i]]
		if !ok {
			continue
		}
		if bookmarkedOnly && !q.Bookmarked {
			continue
		}
		res = append(res, q)
	}
	return res, nil
}

func (m *MemoryStore) SetBookmarked(id string, bookmarked bool) (domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return domain.Question{}, fmt.Errorf("question %s not found", id)
	}
	q.Bookmarked = bookmarked
	m.questions[id] = q
	return q, nil
}

func (m *MemoryStore) SetQuestionScore(id string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return fmt.Errorf("question %s not found", id)
	}
	q.Score = &score
	m.questions[id] = q
	return nil
}

func (m *MemoryStore) DeleteQuestion(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.questions, id)
	delete(m.messages, id)
	delete(m.diagnoses, id)
	return nil
}

func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[msg.QuestionID]; !ok {
		return fmt.Errorf("question %s not found", msg.QuestionID)
	}
	m.messages[msg.QuestionID] = append(m.messages[msg.QuestionID], msg)
	return nil
}

func (m *MemoryStore) ListMessages(questionID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]domain.Message, len(m.messages[questionID]))
	copy(msgs, m.messages[questionID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (m *MemoryStore) SaveDiagnosis(d domain.Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnoses[d.QuestionID] = append(m.diagnoses[d.QuestionID], d)
	return nil
}

func (m *MemoryStore) LatestDiagnosis(questionID string) (domain.Diagnosis, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.diagnoses[questionID]
	if len(rows) == 0 {
		return domain.Diagnosis{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (m *MemoryStore) CountDiagnoses(questionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.diagnoses[questionID]), nil
}

// SetResources replaces the catalog. Test/seed helper.
func (m *MemoryStore) SetResources(resources []domain.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append([]domain.Resource(nil), resources...)
}

func (m *MemoryStore) ListResources() ([]domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Resource, len(m.resources))
	copy(res, m.resources)
	return res, nil
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.emails[u.Email]; ok && existingID != u.ID {
		return fmt.Errorf("email %s already registered", u.Email)
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) SaveFeedback(f domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, f)
	return nil
}

// Feedback returns stored feedback. Test helper.
func (m *MemoryStore) Feedback() []domain.Feedback {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Feedback, len(m.feedback))
	copy(res, m.feedback)
	return res
}

// ExecSQL records the statement; the in-memory store cannot execute SQL.
func (m *MemoryStore) ExecSQL(sqlText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, sqlText)
	return nil
}

// ExecutedSQL returns recorded raw SQL statements. Test helper.
func (m *MemoryStore) ExecutedSQL() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]string, len(m.executed))
	copy(res, m.executed)
	return res
}

// MemorySessionStore keeps session tokens in-process.
type MemorySessionStore struct {
	mu   sync.Mutex
	sess map[string]string
	next int
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sess: make(map[string]string)}
}

func (s *MemorySessionStore) NewSession(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	token := fmt.Sprintf("session-%d", s.next)
	s.sess[token] = userID
	return token, nil
}

func (s *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.sess[token]
	return uid, ok, nil
}

func (s *MemorySessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sess, token)
	return nil
}
