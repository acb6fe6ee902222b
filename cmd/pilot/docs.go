package main

//go:generate swag init -g cmd/pilot/main.go -o docs

// @title           TradePulse API
// @version         0.1.0
// @description     Feed ingestion, LLM trade analysis, and position risk monitoring.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
