// Package questions keeps the question pool in step with the content site.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/interviewbud/internal/models"
	"go.uber.org/zap"
)

// Upserter stores synced questions.
type Upserter interface {
	UpsertQuestion(ctx context.Context, q *models.Question) error
}

type Syncer struct {
	sourceURL  string
	category   int
	perPage    int
	store      Upserter
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSyncer(sourceURL string, category, perPage int, store Upserter, logger *zap.Logger) (*Syncer, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, errors.New("questions: source url must not be empty")
	}
	if store == nil {
		return nil, errors.New("questions: store must not be nil")
	}
	if perPage <= 0 {
		perPage = 50
	}
	return &Syncer{
		sourceURL:  sourceURL,
		category:   category,
		perPage:    perPage,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

type remoteQuestion struct {
	ID         json.Number   `json:"id"`
	Title      string        `json:"question_title"`
	Categories []json.Number `json:"categories"`
}

// Sync fetches the remote question list and upserts every question in the
// configured category. It returns how many questions were stored.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	endpoint := fmt.Sprintf("%squestions?filter[posts_per_page]=%d", s.sourceURL, s.perPage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch questions: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return 0, fmt.Errorf("fetch questions: status %d", res.StatusCode)
	}

	var remote []remoteQuestion
	if err := json.NewDecoder(res.Body).Decode(&remote); err != nil {
		return 0, fmt.Errorf("decode questions: %w", err)
	}

	s.logger.Debug("Loading questions", zap.Int("fetched", len(remote)))

	stored := 0
	for _, rq := range remote {
		if len(rq.Categories) == 0 {
			continue
		}
		category, err := strconv.Atoi(rq.Categories[0].String())
		if err != nil || category != s.category {
			continue
		}

		q := &models.Question{
			ID:       rq.ID.String(),
			Title:    strings.TrimSpace(rq.Title),
			Category: category,
		}
		if q.ID == "" || q.Title == "" {
			s.logger.Warn("Skipping incomplete question", zap.String("question_id", q.ID))
			continue
		}
		if err := s.store.UpsertQuestion(ctx, q); err != nil {
			s.logger.Error("Failed to update question", zap.Error(err), zap.String("question_id", q.ID))
			continue
		}
		s.logger.Debug("Updated question", zap.String("question_id", q.ID))
		stored++
	}

	s.logger.Info("Synced questions", zap.Int("stored", stored), zap.Int("category", s.category))
	return stored, nil
}
