package models

// UserProfile is the one locally cached user. Field names match the backend's
// snake_case wire format exactly; the same shape is persisted inside the local
// cache envelope.
type UserProfile struct {
	UserID           string `json:"user_id"`
	UserKey          string `json:"user_key"`
	UserName         string `json:"user_name"`
	Username         string `json:"username"`
	UserEmail        string `json:"user_email"`
	UserCredits      *int64 `json:"user_credits"`
	UserCreationDate string `json:"user_creation_date"`
	UseFlag          bool   `json:"use_flag"`
	UserPhotoURL     string `json:"user_photo_url"`
	DeviceToken      string `json:"device_token"`
	PhoneNumber      string `json:"phone_number"`
}

// CacheEnvelope wraps the persisted profile with its write time. The
// timestamp is observability only; it is never used for expiry or conflict
// resolution.
type CacheEnvelope struct {
	UserData  *UserProfile `json:"userData"`
	Timestamp string       `json:"timestamp"`
}

// ProfileUpdate carries field overrides for a full-object rewrite of the
// cached profile. Nil fields keep the current value. user_id, user_key and
// user_creation_date are owned by the backend and cannot be overridden.
type ProfileUpdate struct {
	UserName     *string
	Username     *string
	UserEmail    *string
	UserCredits  *int64
	UserPhotoURL *string
	DeviceToken  *string
	PhoneNumber  *string
}

// Apply merges the overrides into a copy of cur.
func (u ProfileUpdate) Apply(cur UserProfile) UserProfile {
	if u.UserName != nil {
		cur.UserName = *u.UserName
	}
	if u.Username != nil {
		cur.Username = *u.Username
	}
	if u.UserEmail != nil {
		cur.UserEmail = *u.UserEmail
	}
	if u.UserCredits != nil {
		cur.UserCredits = u.UserCredits
	}
	if u.UserPhotoURL != nil {
		cur.UserPhotoURL = *u.UserPhotoURL
	}
	if u.DeviceToken != nil {
		cur.DeviceToken = *u.DeviceToken
	}
	if u.PhoneNumber != nil {
		cur.PhoneNumber = *u.PhoneNumber
	}
	return cur
}

// ProfileData is the aggregated profile view returned by the backend's
// profile endpoint. Several counters arrive as strings on the wire.
type ProfileData struct {
	UserID                string          `json:"user_id"`
	UserName              string          `json:"user_name"`
	UserEmail             string          `json:"user_email"`
	UserPhotoURL          string          `json:"user_photo_url"`
	TotalPoints           int64           `json:"total_points"`
	PointsLastUpdated     string          `json:"points_last_updated"`
	TotalQuizzesPlayed    string          `json:"total_quizzes_played"`
	TotalWins             string          `json:"total_wins"`
	TotalLosses           string          `json:"total_losses"`
	TotalAnswers          string          `json:"total_answers"`
	TotalCorrectAnswers   string          `json:"total_correct_answers"`
	TotalIncorrectAnswers string          `json:"total_incorrect_answers"`
	Accuracy              string          `json:"accuracy"`
	CategoryStats         []CategoryStats `json:"category_stats"`
}

type CategoryStats struct {
	CategoryID            int64   `json:"category_id"`
	CategoryName          string  `json:"category_name"`
	CategoryIcon          string  `json:"category_icon"`
	CategoryColor         string  `json:"category_color"`
	TotalQuizzesPlayed    int64   `json:"total_quizzes_played"`
	TotalWins             int64   `json:"total_wins"`
	TotalLosses           int64   `json:"total_losses"`
	TotalAnswers          int64   `json:"total_answers"`
	TotalCorrectAnswers   int64   `json:"total_correct_answers"`
	TotalIncorrectAnswers int64   `json:"total_incorrect_answers"`
	Accuracy              float64 `json:"accuracy"`
}
