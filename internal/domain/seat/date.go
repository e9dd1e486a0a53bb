package seat

import "time"

// DateLayout は乗車日の形式
const DateLayout = "2006-01-02"

// NormalizeDate は乗車日を検証する。空の場合は now の日付を返す
func NormalizeDate(date string, now time.Time) (string, error) {
	if date == "" {
		return now.Format(DateLayout), nil
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", ErrInvalidDate
	}
	return date, nil
}
