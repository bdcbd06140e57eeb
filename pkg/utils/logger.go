package utils

import "go.uber.org/zap"

// NewLogger builds the logger shared by every kbc command. Debug mode logs
// ranking chunks and search steps in console form; otherwise only info and
// above is written, as JSON.
func NewLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
