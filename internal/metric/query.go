package metric

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Between constrains query to rows whose column falls inside the window.
// An all-time window leaves the query unchanged.
func Between(query *gorm.DB, column string, w Window) *gorm.DB {
	if w.All {
		return query
	}
	return BetweenTimes(query, column, w.Start, w.End)
}

// BetweenTimes constrains column to the inclusive span [start, end].
func BetweenTimes(query *gorm.DB, column string, start, end time.Time) *gorm.DB {
	return query.Where("? BETWEEN ? AND ?", clause.Column{Name: column}, start, end)
}

// Count counts rows of query inside the window and, when the window has a
// comparison period, inside the previous period too.
func Count(ctx context.Context, query *gorm.DB, column string, w Window) (*ValueResult, error) {
	base := query.WithContext(ctx)

	var current int64
	if err := Between(base, column, w).Count(&current).Error; err != nil {
		return nil, fmt.Errorf("counting current period: %w", err)
	}
	result := Value(float64(current))

	if w.HasPrevious() {
		var previous int64
		if err := BetweenTimes(base, column, w.PrevStart, w.PrevEnd).Count(&previous).Error; err != nil {
			return nil, fmt.Errorf("counting previous period: %w", err)
		}
		result.WithPrevious(float64(previous))
	}
	return result, nil
}

type dailyCount struct {
	Day   time.Time
	Total int64
}

// DailyTrend counts rows per day inside the window. Days without rows are
// reported as zero.
func DailyTrend(ctx context.Context, query *gorm.DB, column string, w Window) (*TrendResult, error) {
	var rows []dailyCount
	err := Between(query.WithContext(ctx), column, w).
		Select("DATE(?) AS day, COUNT(*) AS total", clause.Column{Name: column}).
		Group("day").
		Order("day").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily trend: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Day.Format(time.DateOnly)] = r.Total
	}

	days := w.Days()
	if days == nil {
		points := make([]TrendPoint, 0, len(rows))
		for _, r := range rows {
			points = append(points, TrendPoint{Label: r.Day.Format(time.DateOnly), Value: float64(r.Total)})
		}
		return Trend(points), nil
	}

	points := make([]TrendPoint, 0, len(days))
	for _, d := range days {
		label := d.Format(time.DateOnly)
		points = append(points, TrendPoint{Label: label, Value: float64(counts[label])})
	}
	return Trend(points), nil
}

// Latest returns the newest rows of query inside the window.
func Latest(ctx context.Context, query *gorm.DB, column, orderBy string, limit int, w Window) ([]map[string]any, error) {
	if orderBy == "" {
		orderBy = column
	}
	if limit <= 0 {
		limit = 10
	}
	rows := []map[string]any{}
	err := Between(query.WithContext(ctx), column, w).
		Order(clause.OrderByColumn{Column: clause.Column{Name: orderBy}, Desc: true}).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest rows: %w", err)
	}
	return rows, nil
}
