// restore-seed is a one-shot tool to restore the mill's master data: products,
// storage locations and suppliers. It never touches the ledger or any stock
// figure, so it is safe to run against a live database.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"log"

	"ricemill-inventory/internal/config"
	"ricemill-inventory/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Restoring products...")
	_, err = tx.Exec(ctx, `
		INSERT INTO products (code, name, category, price, is_milled_rice, milling_yield_rate, reorder_point)
		VALUES
		    ('RICE-DINORADO', 'Dinorado milled rice', 'Milled Rice', 2600.00, true,  0.65, 100),
		    ('RICE-JASMINE',  'Jasmine milled rice',  'Milled Rice', 2450.00, true,  0.64, 100),
		    ('RICE-WELLMIL',  'Well-milled rice',     'Milled Rice', 2100.00, true,  0.66, 200),
		    ('PALAY-RC222',   'RC222 palay',          'Palay',         22.00, false, 0,    5000),
		    ('PALAY-RC160',   'RC160 palay',          'Palay',         21.50, false, 0,    5000),
		    ('BRAN-D1',       'Rice bran D1',         'By-product',    15.00, false, 0,    0),
		    ('HUSK',          'Rice husk',            'By-product',     2.00, false, 0,    0)
		ON CONFLICT (code) DO UPDATE
		  SET name = EXCLUDED.name,
		      category = EXCLUDED.category,
		      price = EXCLUDED.price,
		      is_milled_rice = EXCLUDED.is_milled_rice,
		      milling_yield_rate = EXCLUDED.milling_yield_rate,
		      reorder_point = EXCLUDED.reorder_point;
	`)
	if err != nil {
		log.Fatalf("Failed to restore products: %v", err)
	}

	log.Println("Restoring storage locations...")
	_, err = tx.Exec(ctx, `
		INSERT INTO storage_locations (code, name, type, is_active)
		VALUES
		    ('WH-A', 'Warehouse A',   'WAREHOUSE', true),
		    ('WH-B', 'Warehouse B',   'WAREHOUSE', true),
		    ('ZN-C', 'Drying zone C', 'ZONE',      true)
		ON CONFLICT (code) DO UPDATE
		  SET name = EXCLUDED.name,
		      type = EXCLUDED.type;
	`)
	if err != nil {
		log.Fatalf("Failed to restore storage locations: %v", err)
	}

	// Bays hang off their warehouse so the hierarchy survives a restore.
	_, err = tx.Exec(ctx, `
		INSERT INTO storage_locations (code, name, type, parent_id, is_active)
		SELECT b.code, b.name, 'BIN', p.id, true
		FROM (VALUES
		    ('WH-A-01', 'Warehouse A bay 1', 'WH-A'),
		    ('WH-A-02', 'Warehouse A bay 2', 'WH-A'),
		    ('WH-B-01', 'Warehouse B bay 1', 'WH-B')
		) AS b(code, name, parent)
		JOIN storage_locations p ON p.code = b.parent
		ON CONFLICT (code) DO UPDATE
		  SET name = EXCLUDED.name,
		      parent_id = EXCLUDED.parent_id;
	`)
	if err != nil {
		log.Fatalf("Failed to restore bays: %v", err)
	}

	log.Println("Restoring suppliers...")
	_, err = tx.Exec(ctx, `
		INSERT INTO suppliers (code, name)
		VALUES
		    ('SUP-NE',  'Nueva Ecija Farmers Coop'),
		    ('SUP-ISA', 'Isabela Palay Traders')
		ON CONFLICT (code) DO UPDATE
		  SET name = EXCLUDED.name;
	`)
	if err != nil {
		log.Fatalf("Failed to restore suppliers: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Println("Seed data restored.")
}
