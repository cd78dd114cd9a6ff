package domain

import "errors"

// Harvester errors - 掃描層錯誤
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrNotDirectory indicates the harvest root is not a directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStructuralUnsupported indicates the filesystem does not support
	// structural metadata access; callers degrade to traversal
	ErrStructuralUnsupported = errors.New("structural metadata access unsupported")

	// ErrShortItem indicates a structural metadata item too short to parse
	ErrShortItem = errors.New("metadata item too short")
)

// Store errors - 索引儲存層錯誤
var (
	// ErrStoreLocked indicates the single-writer lock is held by another writer
	ErrStoreLocked = errors.New("store is locked by another writer")

	// ErrStoreClosed indicates an operation on a closed store
	ErrStoreClosed = errors.New("store is closed")
)

// Query errors - 查詢層錯誤
var (
	// ErrInvalidFilter indicates a malformed filter value
	ErrInvalidFilter = errors.New("invalid filter")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
