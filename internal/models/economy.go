package models

// Balance and transaction shapes for the coin and points economies. These are
// remote-owned; the companion only ever caches last-known values.

type CoinBalance struct {
	CoinID      string `json:"coin_id"`
	UserID      string `json:"user_id"`
	CoinBalance int64  `json:"coin_balance"`
	LastUpdated string `json:"last_updated"`
	UseFlag     bool   `json:"use_flag"`
}

type CoinTransaction struct {
	TransactionID        string `json:"transaction_id"`
	UserID               string `json:"user_id"`
	TransactionType      string `json:"transaction_type"`
	TransactionAmount    int64  `json:"transaction_amount"`
	TransactionDate      string `json:"transaction_date"`
	TransactionReference string `json:"transaction_reference"`
	Comment              string `json:"comment"`
}

type PointsBalance struct {
	UserID      string `json:"user_id"`
	TotalPoints int64  `json:"total_points"`
	LastUpdated string `json:"last_updated"`
	UseFlag     bool   `json:"use_flag"`
}

type PointsTransaction struct {
	TransactionID   string `json:"transaction_id"`
	UserID          string `json:"user_id"`
	TransactionType string `json:"transaction_type"`
	Points          int64  `json:"points"`
	Description     string `json:"description"`
	CreatedAt       string `json:"created_at"`
	UseFlag         bool   `json:"use_flag"`
}

type LeaderboardPlayer struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	Username     string `json:"username"`
	UserPhotoURL string `json:"user_photo_url"`
	TotalPoints  int64  `json:"total_points"`
	Rank         int    `json:"rank"`
}

type PopularCategory struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	PlayCount   int64  `json:"play_count"`
	LastPlayed  string `json:"last_played"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type GameSession struct {
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	Category       string `json:"category"`
	CategoryName   string `json:"category_name"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	CorrectAnswers int64  `json:"correct_answers"`
	TotalQuestions int64  `json:"total_questions"`
	Icon           string `json:"icon"`
	Color          string `json:"color"`
	Description    string `json:"description"`
}
