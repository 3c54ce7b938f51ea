package domain

import "time"

// UserRole 用户角色
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User 表示收件人目录中的用户。
//
// 目录由外部账号系统维护，归档核心只按邮箱地址只读查询。
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Role      UserRole  `json:"role" gorm:"type:varchar(20);default:'user';index"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin 判断用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
