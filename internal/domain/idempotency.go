package domain

// IdempotencyKey Model — inserting the row is the atomic claim; a duplicate
// key error means the operation already ran
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:191"`  // Caller-supplied dedupe token
	CreatedAt int64  `gorm:"autoCreateTime:milli"` // Timestamp of claim in milliseconds
}
