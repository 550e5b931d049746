package database

// Money columns are stored as TEXT and parsed with shopspring/decimal so the
// ledger never accumulates binary-float drift.
const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol          TEXT NOT NULL,
	exchange        TEXT NOT NULL,
	token           TEXT NOT NULL DEFAULT '',
	lot_size        INTEGER NOT NULL DEFAULT 1,
	instrument_type TEXT NOT NULL DEFAULT 'EQ',
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol, exchange)
);

CREATE TABLE IF NOT EXISTS portfolios (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL UNIQUE,
	initial_balance TEXT NOT NULL,
	current_balance TEXT NOT NULL,
	is_active       INTEGER NOT NULL DEFAULT 1,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS positions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id    INTEGER NOT NULL REFERENCES portfolios(id),
	instrument_id   INTEGER NOT NULL REFERENCES instruments(id),
	total_quantity  INTEGER NOT NULL DEFAULT 0,
	average_price   TEXT NOT NULL,
	invested_amount TEXT NOT NULL,
	current_price   TEXT,
	unrealized_pnl  TEXT,
	is_open         INTEGER NOT NULL DEFAULT 1,
	entry_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	exit_at         TIMESTAMP,
	UNIQUE (portfolio_id, instrument_id)
);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions (portfolio_id, is_open);

CREATE TABLE IF NOT EXISTS trades (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id  INTEGER NOT NULL REFERENCES portfolios(id),
	instrument_id INTEGER NOT NULL REFERENCES instruments(id),
	side          TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	price         TEXT NOT NULL,
	fee           TEXT NOT NULL DEFAULT '0',
	buy_amount    TEXT,
	profit        TEXT,
	pnl_percent   TEXT,
	order_type    TEXT NOT NULL DEFAULT 'MARKET',
	ref_trade_id  INTEGER REFERENCES trades(id),
	remarks       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_portfolio ON trades (portfolio_id, instrument_id, created_at);
CREATE INDEX IF NOT EXISTS idx_trades_side ON trades (side, created_at);

CREATE TABLE IF NOT EXISTS quotes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument_id INTEGER NOT NULL REFERENCES instruments(id),
	ltp           TEXT NOT NULL,
	observed_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_instrument ON quotes (instrument_id, observed_at);

CREATE TABLE IF NOT EXISTS signals (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id    INTEGER NOT NULL REFERENCES portfolios(id),
	instrument_id   INTEGER NOT NULL REFERENCES instruments(id),
	side            TEXT NOT NULL,
	confidence      REAL NOT NULL,
	strength        TEXT NOT NULL DEFAULT 'MODERATE',
	entry_price     TEXT NOT NULL,
	target_price    TEXT,
	stop_loss       TEXT,
	fixed_quantity  INTEGER,
	reason          TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1,
	is_executed     INTEGER NOT NULL DEFAULT 0,
	executed_at     TIMESTAMP,
	execution_price TEXT,
	expires_at      TIMESTAMP NOT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_signals_pending ON signals (portfolio_id, is_active, is_executed, expires_at);
CREATE INDEX IF NOT EXISTS idx_signals_rank ON signals (confidence, created_at);

CREATE TABLE IF NOT EXISTS executions (
	id              TEXT PRIMARY KEY,
	signal_id       INTEGER NOT NULL REFERENCES signals(id),
	quantity        INTEGER NOT NULL,
	requested_price TEXT NOT NULL,
	executed_price  TEXT,
	order_id        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'PENDING',
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_executions_signal ON executions (signal_id, created_at);

CREATE TABLE IF NOT EXISTS bot_state (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	is_active    INTEGER NOT NULL DEFAULT 1,
	total_runs   INTEGER NOT NULL DEFAULT 0,
	error_count  INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT '',
	last_run_at  TIMESTAMP
);
INSERT OR IGNORE INTO bot_state (id) VALUES (1);

CREATE TABLE IF NOT EXISTS daily_summaries (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	day            TEXT NOT NULL UNIQUE,
	total_trades   INTEGER NOT NULL DEFAULT 0,
	buy_trades     INTEGER NOT NULL DEFAULT 0,
	sell_trades    INTEGER NOT NULL DEFAULT 0,
	realized_pnl   TEXT NOT NULL DEFAULT '0',
	winning_trades INTEGER NOT NULL DEFAULT 0,
	losing_trades  INTEGER NOT NULL DEFAULT 0,
	win_rate       REAL NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
