package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound       = errors.New("予約が見つかりません")
	ErrBookingNotActive      = errors.New("予約は有効ではありません")
	ErrSeatAlreadyBooked     = errors.New("座席は既に予約されています")
	ErrLockRequired          = errors.New("予約には座席のロックが必要です")
	ErrHoldOrLockRequired    = errors.New("振替先の座席を選択してください")
	ErrDeparted              = errors.New("出発後はキャンセルできません")
	ErrBusIDRequired         = errors.New("バスIDは必須です")
	ErrSeatIDRequired        = errors.New("座席IDは必須です")
	ErrUserIDRequired        = errors.New("ユーザーIDは必須です")
	ErrPassengerNameRequired = errors.New("乗客名は必須です")
)
