package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/selimgur/librarium/middleware"
	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/service"
	"github.com/selimgur/librarium/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BooksHandler struct {
	DB       *store.DB
	S3       *service.S3Service // nil when uploads are not configured
	MaxBytes int64
}

type bookRequest struct {
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	Description     string   `json:"description"`
	Genre           string   `json:"genre"`
	Price           *float64 `json:"price"`
	PublicationYear *int     `json:"publicationYear"`
	Stock           *int     `json:"stock"`
	BorrowedCount   *int     `json:"borrowedCount"`
	ImageURL        string   `json:"imageUrl"`
}

func (req *bookRequest) validateForCreate() string {
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Genre = strings.TrimSpace(req.Genre)
	if len(req.Title) < 2 || len(req.Title) > 255 {
		return "title must be between 2 and 255 characters"
	}
	if len(req.Author) < 2 || len(req.Author) > 255 {
		return "author must be between 2 and 255 characters"
	}
	if len(req.Description) > 1000 {
		return "description must be at most 1000 characters"
	}
	if len(req.Genre) < 2 {
		return "genre must be at least 2 characters"
	}
	if req.Price == nil || *req.Price <= 0 {
		return "price must be a positive number"
	}
	if req.PublicationYear == nil {
		return "publicationYear is required"
	}
	if y := *req.PublicationYear; y < 1000 || y > time.Now().Year()+1 {
		return "enter a valid publication year"
	}
	if req.Stock != nil && *req.Stock < 0 {
		return "stock must be 0 or more"
	}
	if req.BorrowedCount != nil && *req.BorrowedCount > 0 {
		return "borrowedCount must be 0 when adding a new book"
	}
	return ""
}

// Create adds a book to the catalog. Admin only. POST /book/new.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	adminID, ansOK := middleware.UserIDFromContext(r.Context())
	if !ansOK {
		fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg := req.validateForCreate(); msg != "" {
		fail(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	book := &models.Book{
		Title:           req.Title,
		Author:          req.Author,
		Description:     req.Description,
		Genre:           req.Genre,
		Price:           *req.Price,
		PublicationYear: *req.PublicationYear,
		BorrowedCount:   0,
		ImageURL:        req.ImageURL,
		AddedBy:         adminID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Stock != nil {
		book.Stock = *req.Stock
	}
	if book.ImageURL == "" {
		book.ImageURL = models.DefaultCoverURL
	}
	id, err := h.DB.InsertBook(r.Context(), book)
	if err != nil {
		log.Printf("create book: %v", err)
		fail(w, http.StatusInternalServerError, "failed to add book")
		return
	}
	book.ID = id
	ok(w, http.StatusCreated, map[string]any{
		"message": "book added successfully",
		"book":    book,
	})
}

// List returns the whole catalog, newest first. Public. GET /books.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.DB.AllBooks(r.Context())
	if err != nil {
		log.Printf("list books: %v", err)
		fail(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"books": books,
		"count": len(books),
	})
}

// Get returns one book. Public. GET /book/{id}.
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := h.DB.BookByID(r.Context(), id)
	if err != nil {
		log.Printf("get book: %v", err)
		fail(w, http.StatusInternalServerError, "failed to load book")
		return
	}
	if book == nil {
		fail(w, http.StatusNotFound, "book not found")
		return
	}
	ok(w, http.StatusOK, map[string]any{"book": book})
}

// Update changes a book's metadata and, when provided, its stock.
// Stock goes through the guarded SetStock path so it can never drop
// under the borrowed count; borrowedCount is not updatable here at all.
// Admin only. PUT /book/{id}.
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}

	fields := bson.M{}
	if t := strings.TrimSpace(req.Title); t != "" {
		if len(t) < 2 || len(t) > 255 {
			fail(w, http.StatusBadRequest, "title must be between 2 and 255 characters")
			return
		}
		fields["title"] = t
	}
	if a := strings.TrimSpace(req.Author); a != "" {
		if len(a) < 2 || len(a) > 255 {
			fail(w, http.StatusBadRequest, "author must be between 2 and 255 characters")
			return
		}
		fields["author"] = a
	}
	if req.Description != "" {
		if len(req.Description) > 1000 {
			fail(w, http.StatusBadRequest, "description must be at most 1000 characters")
			return
		}
		fields["description"] = req.Description
	}
	if g := strings.TrimSpace(req.Genre); g != "" {
		if len(g) < 2 {
			fail(w, http.StatusBadRequest, "genre must be at least 2 characters")
			return
		}
		fields["genre"] = g
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			fail(w, http.StatusBadRequest, "price must be a positive number")
			return
		}
		fields["price"] = *req.Price
	}
	if req.PublicationYear != nil {
		if y := *req.PublicationYear; y < 1000 || y > time.Now().Year()+1 {
			fail(w, http.StatusBadRequest, "enter a valid publication year")
			return
		}
		fields["publicationYear"] = *req.PublicationYear
	}
	if req.ImageURL != "" {
		fields["imageUrl"] = req.ImageURL
	}

	book, err := h.DB.BookByID(r.Context(), id)
	if err != nil {
		log.Printf("update book: %v", err)
		fail(w, http.StatusInternalServerError, "failed to update book")
		return
	}
	if book == nil {
		fail(w, http.StatusNotFound, "book not found")
		return
	}

	if len(fields) > 0 {
		book, err = h.DB.UpdateBookFields(r.Context(), id, fields)
		if err != nil {
			log.Printf("update book: %v", err)
			fail(w, http.StatusInternalServerError, "failed to update book")
			return
		}
		if book == nil {
			fail(w, http.StatusNotFound, "book not found")
			return
		}
	}

	if req.Stock != nil {
		if *req.Stock < 0 {
			fail(w, http.StatusBadRequest, "stock must be 0 or more")
			return
		}
		book, err = h.DB.SetStock(r.Context(), id, *req.Stock)
		if err == store.ErrStockBelowBorrowed {
			fail(w, http.StatusBadRequest, "stock cannot be lower than the number of borrowed copies")
			return
		}
		if err != nil {
			log.Printf("update book stock: %v", err)
			fail(w, http.StatusInternalServerError, "failed to update book")
			return
		}
		if book == nil {
			fail(w, http.StatusNotFound, "book not found")
			return
		}
	}

	ok(w, http.StatusOK, map[string]any{
		"message": "book updated successfully",
		"book":    book,
	})
}

// Delete removes a book that has no copies out on loan. Admin only.
// DELETE /book/{id}.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := h.DB.DeleteBook(r.Context(), id)
	if err == store.ErrBookOnLoan {
		fail(w, http.StatusConflict, "this book cannot be deleted while copies are on loan; all copies must be returned first")
		return
	}
	if err != nil {
		log.Printf("delete book: %v", err)
		fail(w, http.StatusInternalServerError, "failed to delete book")
		return
	}
	if book == nil {
		fail(w, http.StatusNotFound, "book not found")
		return
	}
	if book.ImageS3Key != "" && h.S3 != nil {
		if err := h.S3.Delete(r.Context(), book.ImageS3Key); err != nil {
			log.Printf("delete book cover from s3: %v", err)
		}
	}
	ok(w, http.StatusOK, map[string]any{
		"message": "book deleted successfully",
	})
}

// UploadCover stores a cover image in S3 and sets the book's imageUrl.
// Admin only. POST /book/{id}/cover (multipart form, field "image").
func (h *BooksHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	if h.S3 == nil {
		fail(w, http.StatusServiceUnavailable, "cover uploads are not configured")
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := h.DB.BookByID(r.Context(), id)
	if err != nil {
		log.Printf("upload cover: %v", err)
		fail(w, http.StatusInternalServerError, "failed to load book")
		return
	}
	if book == nil {
		fail(w, http.StatusNotFound, "book not found")
		return
	}

	if h.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)
	}
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		fail(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		fail(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		fail(w, http.StatusBadRequest, "cover must be an image")
		return
	}

	key, url, err := h.S3.Upload(r.Context(), "covers/", header.Filename, file, contentType)
	if err != nil {
		log.Printf("upload cover to s3: %v", err)
		fail(w, http.StatusInternalServerError, "failed to upload cover")
		return
	}
	if book.ImageS3Key != "" {
		if err := h.S3.Delete(r.Context(), book.ImageS3Key); err != nil {
			log.Printf("delete old cover from s3: %v", err)
		}
	}
	updated, err := h.DB.UpdateBookFields(r.Context(), id, bson.M{
		"imageUrl":   url,
		"imageS3Key": key,
	})
	if err != nil || updated == nil {
		log.Printf("upload cover: save image url: %v", err)
		fail(w, http.StatusInternalServerError, "failed to save cover")
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"message": "cover uploaded successfully",
		"book":    updated,
	})
}
