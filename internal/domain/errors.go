package domain

import "errors"

// ErrDuplicateTransportID 同一传输层 Message-ID 已入库。
//
// 仅在存储层内部用于识别唯一索引冲突，Create 会将其转换为返回已有记录。
var ErrDuplicateTransportID = errors.New("duplicate transport message id")
