package gorm

import (
	"context"
	"errors"
	"strings"

	"github.com/ichigozero/taskkeeper/tasksvc"
	stdgorm "gorm.io/gorm"
)

type taskRepository struct {
	db *stdgorm.DB
}

func NewTaskRepository(db *stdgorm.DB) tasksvc.TaskRepository {
	return &taskRepository{db}
}

func (t taskRepository) Create(ctx context.Context, task tasksvc.Task) (tasksvc.Task, error) {
	if task.ID == "" {
		task.ID = tasksvc.NewID()
	}
	result := t.db.WithContext(ctx).Create(&task)

	return task, result.Error
}

func (t taskRepository) FindAll(ctx context.Context, q tasksvc.Query) ([]tasksvc.Task, error) {
	tx := t.db.WithContext(ctx).Where("user_id = ?", q.OwnerID)

	// SQLite's LOWER folds ASCII only; there the search term is matched
	// on the owner's rows after the fetch.
	searchInSQL := t.db.Dialector.Name() == "postgres"

	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Priority != "" {
		tx = tx.Where("priority = ?", q.Priority)
	}
	if q.Search != "" && searchInSQL {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		tx = tx.Where(
			`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`,
			pattern, pattern,
		)
	}

	for _, o := range orderBy(q) {
		tx = tx.Order(o)
	}

	tasks := []tasksvc.Task{}
	if err := tx.Find(&tasks).Error; err != nil {
		return nil, err
	}

	if q.Search != "" && !searchInSQL {
		matched := tasks[:0]
		for _, task := range tasks {
			if q.Match(task) {
				matched = append(matched, task)
			}
		}
		tasks = matched
	}
	return tasks, nil
}

func (t taskRepository) Find(ctx context.Context, taskID string) (tasksvc.Task, error) {
	var task tasksvc.Task
	result := t.db.WithContext(ctx).Where("id = ?", taskID).First(&task)
	if errors.Is(result.Error, stdgorm.ErrRecordNotFound) {
		return tasksvc.Task{}, tasksvc.ErrNotFound
	}

	return task, result.Error
}

// Update writes the mutable columns only; id, user_id and created_at are
// never part of the statement.
func (t taskRepository) Update(ctx context.Context, task tasksvc.Task) (tasksvc.Task, error) {
	result := t.db.WithContext(ctx).
		Model(&task).
		Select("title", "description", "status", "priority", "due_date", "tags", "updated_at").
		Updates(&task)
	if result.Error != nil {
		return tasksvc.Task{}, result.Error
	}
	if result.RowsAffected == 0 {
		return tasksvc.Task{}, tasksvc.ErrNotFound
	}

	return t.Find(ctx, task.ID)
}

func (t taskRepository) Delete(ctx context.Context, taskID string) error {
	result := t.db.WithContext(ctx).Where("id = ?", taskID).Delete(&tasksvc.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tasksvc.ErrNotFound
	}
	return nil
}

var sortColumns = map[tasksvc.SortField][]string{
	tasksvc.SortCreatedAt: {"created_at"},
	tasksvc.SortUpdatedAt: {"updated_at"},
	tasksvc.SortTitle:     {"title"},
	tasksvc.SortPriority:  {"CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 END"},
	tasksvc.SortDueDate:   {"CASE WHEN due_date IS NULL THEN 0 ELSE 1 END", "due_date"},
}

// orderBy renders q's sort as ORDER BY terms. Only whitelisted
// expressions are emitted; the id term keeps equal keys in a fixed order.
func orderBy(q tasksvc.Query) []string {
	dir := " DESC"
	if q.Order == tasksvc.OrderAsc {
		dir = " ASC"
	}

	cols, ok := sortColumns[q.Sort]
	if !ok {
		cols = sortColumns[tasksvc.SortCreatedAt]
	}

	terms := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		terms = append(terms, c+dir)
	}
	return append(terms, "id ASC")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
