package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Venue is the durable registry row behind a venue namespace. Created
// implicitly the first time a venue sees a queue write.
type Venue struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlayHistory is one started playback. The KV store only keeps the last
// ten track ids for recommendation seeds; this table is the full ledger.
type PlayHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	VenueID   string    `json:"venue_id" gorm:"index;size:64"`
	SongID    string    `json:"song_id" gorm:"size:64"`
	SpotifyID string    `json:"spotify_id" gorm:"size:64"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Hype      int       `json:"hype"`
	PlayedAt  time.Time `json:"played_at"`
}

type MySQLDB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Venue{}, &PlayHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

// EnsureVenue upserts the registry row for venueID.
func (db *MySQLDB) EnsureVenue(venueID string) error {
	return db.Where(Venue{ID: venueID}).FirstOrCreate(&Venue{ID: venueID}).Error
}

// RecordPlay appends one play to the ledger.
func (db *MySQLDB) RecordPlay(entry *PlayHistory) error {
	return db.Create(entry).Error
}

// RecentPlays returns up to limit plays for a venue, newest first.
func (db *MySQLDB) RecentPlays(venueID string, limit int) ([]PlayHistory, error) {
	var plays []PlayHistory
	err := db.Where("venue_id = ?", venueID).
		Order("played_at DESC").
		Limit(limit).
		Find(&plays).Error
	if err != nil {
		return nil, err
	}
	return plays, nil
}
