// Package testutil seeds a small AetherMart dataset into SQLite for tests.
package testutil

import (
	"database/sql"
	"testing"
)

// Schema is the base retail schema without vector or claim columns, the
// shape a fresh database has before the schema guard runs.
const Schema = `
CREATE TABLE Categories (
	category_id INTEGER PRIMARY KEY,
	category_name TEXT NOT NULL
);
CREATE TABLE Products (
	product_id INTEGER PRIMARY KEY,
	product_name TEXT NOT NULL,
	product_description TEXT,
	category_id INTEGER,
	price DECIMAL(10,2) NOT NULL,
	current_rating DECIMAL(3,2)
);
CREATE TABLE Customers (
	customer_id INTEGER PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	email TEXT,
	city TEXT,
	state TEXT,
	zipcode TEXT,
	registration_date DATE
);
CREATE TABLE Orders (
	order_id INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL,
	order_date DATE NOT NULL
);
CREATE TABLE Order_Items (
	order_id INTEGER NOT NULL,
	product_id INTEGER NOT NULL
);
CREATE TABLE Reviews (
	review_id INTEGER PRIMARY KEY,
	product_id INTEGER NOT NULL,
	customer_id INTEGER NOT NULL,
	rating INTEGER,
	review_text TEXT,
	review_date DATE
);
CREATE TABLE customer_sync_queue (
	queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER,
	first_name TEXT,
	last_name TEXT,
	email TEXT,
	city TEXT,
	state TEXT,
	zipcode TEXT,
	sync_status TEXT NOT NULL DEFAULT 'PENDING'
);
CREATE TABLE product_sync_queue (
	queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER,
	product_name TEXT,
	price DECIMAL(10,2),
	sync_status TEXT NOT NULL DEFAULT 'PENDING'
);
CREATE TABLE review_sync_queue (
	queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
	review_id INTEGER,
	customer_id INTEGER,
	product_id INTEGER,
	rating INTEGER,
	review_text TEXT,
	review_date TEXT,
	sync_status TEXT NOT NULL DEFAULT 'PENDING'
);
`

// Data is a handful of rows covering the interesting profile shapes:
// a customer with orders in two categories, one without orders (id 5),
// a product without description and a review without text.
const Data = `
INSERT INTO Categories VALUES (1, 'Electronics'), (2, 'Home'), (3, 'Books');
INSERT INTO Products VALUES
	(1, 'Desk Lamp', 'A warm desk lamp.', 2, 19.99, 4.50),
	(2, 'Headphones', 'Noise cancelling.', 1, 89.50, 2.00),
	(3, 'Mystery Novel', NULL, 3, 12.00, NULL),
	(4, 'Cable', '', 1, 5.00, NULL);
INSERT INTO Customers VALUES
	(1, 'John', 'Smith', 'john@example.com', 'Denver', 'CO', '80202', '2023-05-01'),
	(2, 'Mia', 'Chen', 'mia@example.com', 'Seattle', 'WA', '98101', '2023-06-01'),
	(5, 'Ana', 'Lopez', 'ana@example.com', 'Austin', 'TX', ' 73301 ', '2023-07-01');
INSERT INTO Orders VALUES (1, 1, '2024-01-05'), (2, 1, '2024-02-10'), (3, 2, '2024-03-01');
INSERT INTO Order_Items VALUES (1, 1), (1, 2), (2, 1), (3, 2);
INSERT INTO Reviews VALUES
	(1, 1, 1, 5, 'Love this lamp', '2024-01-20'),
	(2, 2, 1, 2, 'Too quiet', '2024-02-20'),
	(3, 2, 2, 3, '', '2024-03-05'),
	(4, 1, 2, 4, 'Bright and sturdy', '2024-03-06');
`

// Seed creates the schema and loads Data.
func Seed(t testing.TB, db *sql.DB) {
	t.Helper()
	for _, script := range []string{Schema, Data} {
		if _, err := db.Exec(script); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}
