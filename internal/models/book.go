package models

import "time"

// Author is a person credited on books in the library
type Author struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName joins the name parts
func (a Author) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Book represents a book in the library
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ISBN      string    `json:"isbn,omitempty"`
	Year      int       `json:"year,omitempty"`
	Publisher string    `json:"publisher,omitempty"`
	Authors   []Author  `json:"authors"`
	Lists     []List    `json:"lists,omitempty"`
	Tags      []Tag     `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBook is the input for creating a book. Author order is kept.
type NewBook struct {
	Title     string
	ISBN      string
	Year      int
	Publisher string
	AuthorIDs []string
	ListIDs   []string
	TagIDs    []string
}

// List represents a user-curated list of books
type List struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag is a free-form label attached to books
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
