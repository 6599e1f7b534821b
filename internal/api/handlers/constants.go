package handlers

const (
	maxHistoryPageSize = 100 // Maximum page size for generation history

	// Seeds live in a cookie, which browsers cap at 4KB
	maxSeedLength = 2048

	defaultTopK        = 5
	defaultTemperature = 1.0
)
