package client

import (
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u userResponse) toModel() model.User {
	return model.User{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func (s sessionResponse) toModel() *model.Session {
	return &model.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    time.Unix(s.ExpiresAt, 0),
		User:         s.User.toModel(),
	}
}

type signUpResponse struct {
	User    userResponse     `json:"user"`
	Session *sessionResponse `json:"session"`
}

type archiveResponse struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LetterNumber string    `json:"letter_number"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	LetterDate   string    `json:"letter_date"`
	Sender       string    `json:"sender"`
	FileURL      *string   `json:"file_url"`
	Status       string    `json:"status"`
}

func (a archiveResponse) toModel() *model.Archive {
	// 日付が読めない場合はゼロ値のまま表示する
	letterDate, _ := time.Parse("2006-01-02", a.LetterDate)
	return &model.Archive{
		ID:           a.ID,
		CreatedAt:    a.CreatedAt,
		LetterNumber: a.LetterNumber,
		Title:        a.Title,
		Category:     model.Category(a.Category),
		LetterDate:   letterDate,
		Sender:       a.Sender,
		FileURL:      a.FileURL,
		Status:       a.Status,
	}
}

type archiveListResponse struct {
	Archives  []archiveResponse `json:"archives"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
	PageCount int               `json:"page_count"`
}

type summaryResponse struct {
	Incoming  int `json:"incoming"`
	Outgoing  int `json:"outgoing"`
	ThisMonth int `json:"this_month"`
	Month     int `json:"month"`
}
