package catalog

import "errors"

// Catalog ドメインのエラー定義
var (
	ErrBusNotFound      = errors.New("バスが見つかりません")
	ErrSeatNotFound     = errors.New("座席が見つかりません")
	ErrRouteNotFound    = errors.New("路線が見つかりません")
	ErrOperatorNotFound = errors.New("運行会社が見つかりません")
)
