package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS AND BADGES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL,

    -- Skill sets keep the display form; *_keys hold the lowercase form used for matching.
    offered TEXT[] NOT NULL DEFAULT '{}',
    wanted TEXT[] NOT NULL DEFAULT '{}',
    offered_keys TEXT[] NOT NULL DEFAULT '{}',
    wanted_keys TEXT[] NOT NULL DEFAULT '{}',

    reputation DOUBLE PRECISION NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 0,
    sessions_completed INTEGER NOT NULL DEFAULT 0,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    availability_status VARCHAR(20) NOT NULL DEFAULT 'offline',
    availability_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    location VARCHAR(100) NOT NULL DEFAULT '',

    -- Cached balance; the ledger is the source of truth.
    credit_balance INTEGER NOT NULL DEFAULT 0,

    last_active_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_availability CHECK (availability_status IN ('available', 'busy', 'offline')),
    CONSTRAINT valid_reputation CHECK (reputation >= 0 AND reputation <= 5),
    CONSTRAINT valid_level CHECK (level >= 0),
    CONSTRAINT non_negative_balance CHECK (credit_balance >= 0)
);

CREATE INDEX IF NOT EXISTS idx_users_offered_keys ON users USING GIN (offered_keys);
CREATE INDEX IF NOT EXISTS idx_users_wanted_keys ON users USING GIN (wanted_keys);
CREATE INDEX IF NOT EXISTS idx_users_last_active ON users(last_active_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_users_available ON users(reputation DESC) WHERE availability_status = 'available';

CREATE TABLE IF NOT EXISTS user_badges (
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    badge_id VARCHAR(50) NOT NULL,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(16) NOT NULL DEFAULT '',
    category VARCHAR(30) NOT NULL DEFAULT '',
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, badge_id)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREDIT LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS credit_transactions (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type VARCHAR(10) NOT NULL,
    amount INTEGER NOT NULL,
    source VARCHAR(40) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    idempotency_key TEXT,
    balance_after INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_tx_type CHECK (type IN ('earned', 'spent', 'bonus', 'penalty')),
    CONSTRAINT positive_amount CHECK (amount > 0),
    CONSTRAINT non_negative_balance_after CHECK (balance_after >= 0)
);

CREATE INDEX IF NOT EXISTS idx_credit_tx_user_created ON credit_transactions(user_id, created_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_tx_idempotency
    ON credit_transactions(user_id, idempotency_key)
    WHERE idempotency_key IS NOT NULL;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: EARNING RATES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS skill_earning_rates (
    skill_key VARCHAR(100) PRIMARY KEY,
    skill_name VARCHAR(100) NOT NULL,
    category VARCHAR(20) NOT NULL,
    base_rate INTEGER NOT NULL,
    demand_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    difficulty_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_base_rate CHECK (base_rate > 0),
    CONSTRAINT positive_multipliers CHECK (demand_multiplier > 0 AND difficulty_multiplier > 0)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: SETTLED SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS settled_sessions (
    session_id TEXT PRIMARY KEY,
    teacher_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    learner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    rating DOUBLE PRECISION NOT NULL,
    settled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// migrations lists the schema in apply order. Versions are never reused.
var migrations = []migration{
	{version: 1, name: "create_users", up: migration001Up},
	{version: 2, name: "create_credit_ledger", up: migration002Up},
	{version: 3, name: "create_skill_earning_rates", up: migration003Up},
	{version: 4, name: "create_settled_sessions", up: migration004Up},
}
