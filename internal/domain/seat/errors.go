package seat

import "errors"

// Seat ドメインのエラー定義
var (
	ErrInvalidDate    = errors.New("日付はYYYY-MM-DD形式で指定してください")
	ErrSeatIDRequired = errors.New("座席IDは必須です")
	ErrUserIDRequired = errors.New("ユーザーIDは必須です")
)
