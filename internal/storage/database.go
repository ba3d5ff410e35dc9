package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"interviewprep/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured for dbType (sqlite3 or mysql).
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch Dialect(dbType) {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// :memory: databases are per-connection.
		if dbCfg.DSN == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		params := dbCfg.Params
		if !strings.Contains(params, "parseTime") {
			if params != "" {
				params += "&"
			}
			params += "parseTime=true"
		}
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Dialect normalizes a configured driver name.
func Dialect(driver string) string {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "mysql":
		return "mysql"
	default:
		return ""
	}
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch Dialect(driver) {
	case "sqlite3":
		stmts = sqliteSchema
	case "mysql":
		stmts = mysqlSchema
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		interview_type TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		termination_reason TEXT NOT NULL DEFAULT '',
		verdict TEXT NOT NULL DEFAULT '',
		transcript TEXT NOT NULL DEFAULT '[]',
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interview_sessions_user ON interview_sessions(user_id)`,
	`CREATE TABLE IF NOT EXISTS interview_analyses (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		interview_type TEXT NOT NULL,
		overall_score INTEGER NOT NULL,
		communication_score INTEGER NOT NULL,
		technical_score INTEGER NOT NULL,
		confidence_score INTEGER NOT NULL,
		problem_solving_score INTEGER NOT NULL,
		strengths TEXT NOT NULL DEFAULT '[]',
		improvements TEXT NOT NULL DEFAULT '[]',
		feedback TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		recording_url TEXT NOT NULL DEFAULT '',
		recording_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interview_analyses_user ON interview_analyses(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS interview_questions (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL,
		question_order INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		user_answer TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		clarity_score INTEGER NOT NULL DEFAULT 0,
		relevance_score INTEGER NOT NULL DEFAULT 0,
		depth_score INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(analysis_id) REFERENCES interview_analyses(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interview_questions_analysis ON interview_questions(analysis_id, question_order)`,
	`CREATE TABLE IF NOT EXISTS abuse_states (
		user_id INTEGER PRIMARY KEY,
		early_exit_count INTEGER NOT NULL DEFAULT 0,
		level TEXT NOT NULL DEFAULT 'normal',
		warned_at DATETIME,
		acknowledged_at DATETIME,
		suspended_at DATETIME,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		username VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token VARCHAR(255) NOT NULL PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		INDEX idx_user_tokens_user (user_id),
		CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS interview_sessions (
		id CHAR(36) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		interview_type VARCHAR(100) NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NULL,
		duration_seconds INT NOT NULL DEFAULT 0,
		termination_reason VARCHAR(32) NOT NULL DEFAULT '',
		verdict VARCHAR(32) NOT NULL DEFAULT '',
		transcript MEDIUMTEXT NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_interview_sessions_user (user_id),
		CONSTRAINT fk_interview_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS interview_analyses (
		id CHAR(36) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		session_id CHAR(36) NOT NULL,
		interview_type VARCHAR(100) NOT NULL,
		overall_score INT NOT NULL,
		communication_score INT NOT NULL,
		technical_score INT NOT NULL,
		confidence_score INT NOT NULL,
		problem_solving_score INT NOT NULL,
		strengths TEXT NOT NULL,
		improvements TEXT NOT NULL,
		feedback MEDIUMTEXT NOT NULL,
		duration_seconds INT NOT NULL DEFAULT 0,
		recording_url TEXT NOT NULL,
		recording_path VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_interview_analyses_user (user_id, created_at),
		CONSTRAINT fk_interview_analyses_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS interview_questions (
		id CHAR(36) NOT NULL,
		analysis_id CHAR(36) NOT NULL,
		question_order INT NOT NULL,
		question_text TEXT NOT NULL,
		user_answer MEDIUMTEXT NOT NULL,
		feedback TEXT NOT NULL,
		score INT NOT NULL DEFAULT 0,
		clarity_score INT NOT NULL DEFAULT 0,
		relevance_score INT NOT NULL DEFAULT 0,
		depth_score INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_interview_questions_analysis (analysis_id, question_order),
		CONSTRAINT fk_interview_questions_analysis FOREIGN KEY (analysis_id) REFERENCES interview_analyses(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS abuse_states (
		user_id BIGINT UNSIGNED NOT NULL,
		early_exit_count INT NOT NULL DEFAULT 0,
		level VARCHAR(16) NOT NULL DEFAULT 'normal',
		warned_at DATETIME NULL,
		acknowledged_at DATETIME NULL,
		suspended_at DATETIME NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id),
		CONSTRAINT fk_abuse_states_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
