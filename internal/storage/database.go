package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("already exists")

	// ErrInvalidReference is returned when a write names a missing author, list or tag
	ErrInvalidReference = errors.New("referenced record does not exist")
)

// Database handles all database operations
type Database struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatabase creates and initializes the SQLite database
func NewDatabase(dbPath string) (*Database, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	d := &Database{db: db, now: time.Now}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}

	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL COLLATE NOCASE,
		last_name TEXT NOT NULL COLLATE NOCASE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(first_name, last_name)
	);

	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		normalized_title TEXT NOT NULL DEFAULT '',
		isbn TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		publisher TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS book_authors (
		book_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (book_id, author_id),
		FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
		FOREIGN KEY (author_id) REFERENCES authors(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS lists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS book_lists (
		book_id TEXT NOT NULL,
		list_id TEXT NOT NULL,
		PRIMARY KEY (book_id, list_id),
		FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
		FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE
	);

	CREATE TABLE IF NOT EXISTS book_tags (
		book_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		PRIMARY KEY (book_id, tag_id),
		FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		provider TEXT PRIMARY KEY,
		api_key TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_books_normalized_title ON books(normalized_title);
	CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
	CREATE INDEX IF NOT EXISTS idx_book_authors_author ON book_authors(author_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// mapConstraint translates SQLite constraint failures into package errors
func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
	}
	return err
}

// CreateAuthor inserts an author. A name that already exists, compared
// case-insensitively, yields ErrDuplicate.
func (d *Database) CreateAuthor(ctx context.Context, firstName, lastName string) (*models.Author, error) {
	author := &models.Author{
		ID:        uuid.New().String(),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		CreatedAt: d.now(),
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO authors (id, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?)`,
		author.ID, author.FirstName, author.LastName, author.CreatedAt,
	)
	if err != nil {
		return nil, mapConstraint(err)
	}
	return author, nil
}

// FindAuthorByExactName looks up an author by case-insensitive exact name
func (d *Database) FindAuthorByExactName(ctx context.Context, firstName, lastName string) (*models.Author, error) {
	author := &models.Author{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, created_at
		FROM authors WHERE first_name = ? AND last_name = ?`,
		strings.TrimSpace(firstName), strings.TrimSpace(lastName),
	).Scan(&author.ID, &author.FirstName, &author.LastName, &author.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return author, nil
}

// GetAuthor retrieves an author by ID
func (d *Database) GetAuthor(ctx context.Context, id string) (*models.Author, error) {
	author := &models.Author{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, created_at FROM authors WHERE id = ?`, id,
	).Scan(&author.ID, &author.FirstName, &author.LastName, &author.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return author, nil
}

// ListAuthors returns all authors sorted by last name
func (d *Database) ListAuthors(ctx context.Context) ([]models.Author, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, created_at
		FROM authors ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	authors := []models.Author{}
	for rows.Next() {
		var a models.Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.CreatedAt); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// CreateBook inserts a book with its author, list and tag links in one
// transaction. Unknown ids yield ErrInvalidReference.
func (d *Database) CreateBook(ctx context.Context, in models.NewBook) (*models.Book, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.New("book title is required")
	}

	book := &models.Book{
		ID:        uuid.New().String(),
		Title:     title,
		ISBN:      strings.TrimSpace(in.ISBN),
		Year:      in.Year,
		Publisher: strings.TrimSpace(in.Publisher),
		CreatedAt: d.now(),
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO books (id, title, normalized_title, isbn, year, publisher, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, candidate.NormalizeTitle(book.Title), book.ISBN, book.Year, book.Publisher, book.CreatedAt,
	)
	if err != nil {
		return nil, mapConstraint(err)
	}

	for i, authorID := range in.AuthorIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO book_authors (book_id, author_id, position) VALUES (?, ?, ?)",
			book.ID, authorID, i); err != nil {
			return nil, mapConstraint(err)
		}
	}
	for _, listID := range in.ListIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO book_lists (book_id, list_id) VALUES (?, ?)",
			book.ID, listID); err != nil {
			return nil, mapConstraint(err)
		}
	}
	for _, tagID := range in.TagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO book_tags (book_id, tag_id) VALUES (?, ?)",
			book.ID, tagID); err != nil {
			return nil, mapConstraint(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConstraint(err)
	}

	return d.GetBook(ctx, book.ID)
}

// GetBook retrieves a book by ID with its authors, lists and tags
func (d *Database) GetBook(ctx context.Context, id string) (*models.Book, error) {
	books, err := d.queryBooks(ctx, "b.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, ErrNotFound
	}
	book := &books[0]

	if book.Lists, err = d.listsForBook(ctx, id); err != nil {
		return nil, err
	}
	if book.Tags, err = d.tagsForBook(ctx, id); err != nil {
		return nil, err
	}
	return book, nil
}

// ListBooks returns all books with their authors, sorted by title
func (d *Database) ListBooks(ctx context.Context) ([]models.Book, error) {
	return d.queryBooks(ctx, "1 = 1")
}

// SearchBooksByTitleTokens returns books whose normalized title contains
// every token. Tokens must already be normalized; an empty token list
// matches nothing.
func (d *Database) SearchBooksByTitleTokens(ctx context.Context, tokens []string) ([]models.Book, error) {
	if len(tokens) == 0 {
		return []models.Book{}, nil
	}

	clauses := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		clauses = append(clauses, "b.normalized_title LIKE ?")
		args = append(args, "%"+tok+"%")
	}
	return d.queryBooks(ctx, strings.Join(clauses, " AND "), args...)
}

// queryBooks selects books matching where, joined with their authors and
// folded into one entry per book in author order.
func (d *Database) queryBooks(ctx context.Context, where string, args ...any) ([]models.Book, error) {
	query := `
		SELECT b.id, b.title, b.isbn, b.year, b.publisher, b.created_at,
		       a.id, a.first_name, a.last_name, a.created_at
		FROM books b
		LEFT JOIN book_authors ba ON ba.book_id = b.id
		LEFT JOIN authors a ON a.id = ba.author_id
		WHERE ` + where + `
		ORDER BY b.title COLLATE NOCASE, b.id, ba.position`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []models.Book{}
	index := map[string]int{}
	for rows.Next() {
		var book models.Book
		var authorID, first, last sql.NullString
		var authorCreated sql.NullTime
		if err := rows.Scan(&book.ID, &book.Title, &book.ISBN, &book.Year, &book.Publisher, &book.CreatedAt,
			&authorID, &first, &last, &authorCreated); err != nil {
			return nil, err
		}

		i, ok := index[book.ID]
		if !ok {
			book.Authors = []models.Author{}
			books = append(books, book)
			i = len(books) - 1
			index[book.ID] = i
		}
		if authorID.Valid {
			books[i].Authors = append(books[i].Authors, models.Author{
				ID:        authorID.String,
				FirstName: first.String,
				LastName:  last.String,
				CreatedAt: authorCreated.Time,
			})
		}
	}
	return books, rows.Err()
}

// DeleteBook removes a book and its links
func (d *Database) DeleteBook(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateList inserts a new list
func (d *Database) CreateList(ctx context.Context, name, description string) (*models.List, error) {
	list := &models.List{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   d.now(),
	}
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO lists (id, name, description, created_at) VALUES (?, ?, ?, ?)",
		list.ID, list.Name, list.Description, list.CreatedAt,
	)
	if err != nil {
		return nil, mapConstraint(err)
	}
	return list, nil
}

// ListLists returns all lists sorted by name
func (d *Database) ListLists(ctx context.Context) ([]models.List, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, description, created_at FROM lists ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []models.List{}
	for rows.Next() {
		var l models.List
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.CreatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (d *Database) listsForBook(ctx context.Context, bookID string) ([]models.List, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.description, l.created_at
		FROM lists l
		INNER JOIN book_lists bl ON l.id = bl.list_id
		WHERE bl.book_id = ?
		ORDER BY l.name`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []models.List
	for rows.Next() {
		var l models.List
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.CreatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// CreateTag inserts a new tag
func (d *Database) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	tag := &models.Tag{ID: uuid.New().String(), Name: strings.TrimSpace(name)}
	_, err := d.db.ExecContext(ctx, "INSERT INTO tags (id, name) VALUES (?, ?)", tag.ID, tag.Name)
	if err != nil {
		return nil, mapConstraint(err)
	}
	return tag, nil
}

// ListTags returns all tags sorted by name
func (d *Database) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (d *Database) tagsForBook(ctx context.Context, bookID string) ([]models.Tag, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.id, t.name FROM tags t
		INNER JOIN book_tags bt ON t.id = bt.tag_id
		WHERE bt.book_id = ?
		ORDER BY t.name`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// StoredAPIKey returns the key saved for provider, or "" when none is
// saved.
func (d *Database) StoredAPIKey(ctx context.Context, provider string) (string, error) {
	var key string
	err := d.db.QueryRowContext(ctx,
		"SELECT api_key FROM api_keys WHERE provider = ?", provider).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return key, err
}

// SetAPIKey saves or replaces the key for provider. An empty key removes it.
func (d *Database) SetAPIKey(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		_, err := d.db.ExecContext(ctx, "DELETE FROM api_keys WHERE provider = ?", provider)
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO api_keys (provider, api_key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET api_key = excluded.api_key, updated_at = excluded.updated_at`,
		provider, key, d.now(),
	)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
