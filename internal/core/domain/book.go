package domain

import "time"

type Book struct {
	ID          string
	Title       string
	Author      string
	Category    string
	Description string
	Image       string
	Rating      float64
	Quantity    int // copies currently available to borrow, never negative
	OwnerEmail  string
	CreatedAt   time.Time
}

// BookPatch is a partial update of a Book. Nil fields are left untouched.
type BookPatch struct {
	Title       *string
	Author      *string
	Category    *string
	Description *string
	Image       *string
	Rating      *float64
	Quantity    *int
	OwnerEmail  *string
}

func (p BookPatch) IsEmpty() bool {
	return p.Title == nil && p.Author == nil && p.Category == nil && p.Description == nil &&
		p.Image == nil && p.Rating == nil && p.Quantity == nil && p.OwnerEmail == nil
}

// Apply returns a copy of b with the patch fields set.
func (p BookPatch) Apply(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Image != nil {
		b.Image = *p.Image
	}
	if p.Rating != nil {
		b.Rating = *p.Rating
	}
	if p.Quantity != nil {
		b.Quantity = *p.Quantity
	}
	if p.OwnerEmail != nil {
		b.OwnerEmail = *p.OwnerEmail
	}
	return b
}
