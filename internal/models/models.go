package models

import "time"

type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Image     *string   `json:"image,omitempty" db:"image"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserSummary is the public slice of a user embedded in other payloads.
type UserSummary struct {
	ID    string  `json:"id" db:"id"`
	Name  string  `json:"name" db:"name"`
	Image *string `json:"image,omitempty" db:"image"`
}

type Conversation struct {
	ID        string    `json:"id" db:"id"`
	PairKey   string    `json:"-" db:"pair_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ConversationPreview struct {
	ID           string        `json:"id"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
}

type Participant struct {
	UserSummary
	IsOnline bool `json:"is_online"`
}

type Message struct {
	ID             string           `json:"id" db:"id"`
	ConversationID string           `json:"conversation_id" db:"conversation_id"`
	SenderID       string           `json:"sender_id" db:"sender_id"`
	Content        *string          `json:"content,omitempty" db:"content"`
	SharedPostID   *string          `json:"shared_post_id,omitempty" db:"shared_post_id"`
	IsRead         bool             `json:"is_read" db:"is_read"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	Sender         *UserSummary     `json:"sender,omitempty" db:"-"`
	SharedPost     *SharedPostBrief `json:"shared_post,omitempty" db:"-"`
}

type SharedPostBrief struct {
	ID         string `json:"id"`
	ImageURL   string `json:"image_url"`
	Caption    string `json:"caption"`
	AuthorName string `json:"author_name"`
}

type Story struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// AuthorStories groups the active stories of a single author, oldest first.
type AuthorStories struct {
	User    UserSummary `json:"user"`
	Stories []Story     `json:"stories"`
}

type Post struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Caption        string    `json:"caption" db:"caption"`
	ImageURL       string    `json:"image_url" db:"image_url"`
	OriginalPostID *string   `json:"original_post_id,omitempty" db:"original_post_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type PostView struct {
	Post
	Author        UserSummary `json:"author"`
	OriginalPost  *PostBrief  `json:"original_post,omitempty"`
	LikeCount     int         `json:"like_count"`
	CommentCount  int         `json:"comment_count"`
	RepostCount   int         `json:"repost_count"`
	LikedByViewer bool        `json:"liked_by_viewer"`
}

type PostBrief struct {
	ID       string      `json:"id"`
	Caption  string      `json:"caption"`
	ImageURL string      `json:"image_url"`
	Author   UserSummary `json:"author"`
}

type Comment struct {
	ID        string      `json:"id" db:"id"`
	PostID    string      `json:"post_id" db:"post_id"`
	UserID    string      `json:"user_id" db:"user_id"`
	Content   string      `json:"content" db:"content"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	Author    UserSummary `json:"author" db:"-"`
}

type ProfileStats struct {
	PostsCount     int `json:"posts_count"`
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
}

type Establishment struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Address     string    `json:"address" db:"address"`
	Category    string    `json:"category" db:"category"`
	ImageURL    *string   `json:"image_url,omitempty" db:"image_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	Services    []Service `json:"services,omitempty" db:"-"`
}

type Service struct {
	ID              string  `json:"id" db:"id"`
	EstablishmentID string  `json:"establishment_id" db:"establishment_id"`
	Name            string  `json:"name" db:"name"`
	Description     string  `json:"description" db:"description"`
	Price           float64 `json:"price" db:"price"`
	DurationMinutes int     `json:"duration_minutes" db:"duration_minutes"`
	ImageURL        *string `json:"image_url,omitempty" db:"image_url"`
}

type Product struct {
	ID                string    `json:"id" db:"id"`
	EstablishmentID   string    `json:"establishment_id" db:"establishment_id"`
	EstablishmentName string    `json:"establishment_name,omitempty" db:"establishment_name"`
	Name              string    `json:"name" db:"name"`
	Description       string    `json:"description" db:"description"`
	Price             float64   `json:"price" db:"price"`
	ImageURL          *string   `json:"image_url,omitempty" db:"image_url"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

const AppointmentConfirmed = "CONFIRMED"

type Appointment struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	ServiceID       string         `json:"service_id" db:"service_id"`
	EstablishmentID string         `json:"establishment_id" db:"establishment_id"`
	Date            time.Time      `json:"date" db:"date"`
	Status          string         `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	User            *User          `json:"user,omitempty" db:"-"`
	Service         *Service       `json:"service,omitempty" db:"-"`
	Establishment   *Establishment `json:"establishment,omitempty" db:"-"`
}
