package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/example/wordforge/internal/spaced_repetition"
	"github.com/example/wordforge/pkg/models"
)

var wordColumns = []string{
	"id", "term", "definition", "tier", "due_at", "created_at",
	"last_answered_at", "correct_count", "incorrect_count",
}

// wordRow is the storage layout of a word; timestamps are epoch milliseconds
type wordRow struct {
	ID             string        `db:"id"`
	Term           string        `db:"term"`
	Definition     string        `db:"definition"`
	Tier           int           `db:"tier"`
	DueAt          int64         `db:"due_at"`
	CreatedAt      int64         `db:"created_at"`
	LastAnsweredAt sql.NullInt64 `db:"last_answered_at"`
	CorrectCount   int           `db:"correct_count"`
	IncorrectCount int           `db:"incorrect_count"`
}

func (r wordRow) toModel() models.Word {
	w := models.Word{
		ID:             r.ID,
		Term:           r.Term,
		Definition:     r.Definition,
		Tier:           spaced_repetition.ClampTier(r.Tier), // out-of-range tiers are clamped on read
		DueAt:          time.UnixMilli(r.DueAt),
		CreatedAt:      time.UnixMilli(r.CreatedAt),
		CorrectCount:   r.CorrectCount,
		IncorrectCount: r.IncorrectCount,
	}
	if r.LastAnsweredAt.Valid {
		t := time.UnixMilli(r.LastAnsweredAt.Int64)
		w.LastAnsweredAt = &t
	}
	return w
}

func rowFromWord(w *models.Word) wordRow {
	r := wordRow{
		ID:             w.ID,
		Term:           w.Term,
		Definition:     w.Definition,
		Tier:           spaced_repetition.ClampTier(w.Tier),
		DueAt:          w.DueAt.UnixMilli(),
		CreatedAt:      w.CreatedAt.UnixMilli(),
		CorrectCount:   w.CorrectCount,
		IncorrectCount: w.IncorrectCount,
	}
	if w.LastAnsweredAt != nil {
		r.LastAnsweredAt = sql.NullInt64{Int64: w.LastAnsweredAt.UnixMilli(), Valid: true}
	}
	return r
}

// WordRepository handles database operations for words
type WordRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewWordRepository creates a new repository instance
func NewWordRepository(db *sqlx.DB) *WordRepository {
	return &WordRepository{db: db, sb: statementBuilder(db)}
}

// GetByID returns a word by ID, or ErrNotFound
func (r *WordRepository) GetByID(ctx context.Context, id string) (*models.Word, error) {
	query, args, err := r.sb.Select(wordColumns...).From("words").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build word query: %w", err)
	}
	var row wordRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, wrapErr("get word "+id, err)
	}
	w := row.toModel()
	return &w, nil
}

// List returns all words ordered by due time
func (r *WordRepository) List(ctx context.Context) ([]models.Word, error) {
	return r.selectWords(ctx, r.sb.Select(wordColumns...).From("words"), "list words")
}

// ListOverdue returns words due at or before asOf, earliest first
func (r *WordRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]models.Word, error) {
	builder := r.sb.Select(wordColumns...).
		From("words").
		Where(sq.LtOrEq{"due_at": asOf.UnixMilli()})
	return r.selectWords(ctx, builder, "list overdue words")
}

func (r *WordRepository) selectWords(ctx context.Context, builder sq.SelectBuilder, op string) ([]models.Word, error) {
	query, args, err := builder.OrderBy("due_at ASC", "created_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	var rows []wordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr(op, err)
	}
	words := make([]models.Word, 0, len(rows))
	for _, row := range rows {
		words = append(words, row.toModel())
	}
	return words, nil
}

// Save inserts the word or overwrites the stored copy
func (r *WordRepository) Save(ctx context.Context, word *models.Word) error {
	if word.ID == "" {
		return fmt.Errorf("save word: empty id")
	}
	query := r.db.Rebind(`
		INSERT INTO words (
			id, term, definition, tier, due_at, created_at,
			last_answered_at, correct_count, incorrect_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			term = excluded.term,
			definition = excluded.definition,
			tier = excluded.tier,
			due_at = excluded.due_at,
			last_answered_at = excluded.last_answered_at,
			correct_count = excluded.correct_count,
			incorrect_count = excluded.incorrect_count
	`)
	row := rowFromWord(word)
	err := retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query,
			row.ID,
			row.Term,
			row.Definition,
			row.Tier,
			row.DueAt,
			row.CreatedAt,
			row.LastAnsweredAt,
			row.CorrectCount,
			row.IncorrectCount,
		)
		return err
	})
	return wrapErr("save word "+word.ID, err)
}

// Delete removes a word; ErrNotFound if it did not exist
func (r *WordRepository) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind("DELETE FROM words WHERE id = ?")
	var affected int64
	err := retryOnContention(ctx, func() error {
		result, err := r.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return wrapErr("delete word "+id, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete word %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAll removes every word
func (r *WordRepository) DeleteAll(ctx context.Context) error {
	err := retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, "DELETE FROM words")
		return err
	})
	return wrapErr("delete all words", err)
}
