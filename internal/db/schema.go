package db

// SchemaSQL defines the run-history table.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS grouping_run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run_id ON grouping_run TYPE string;
    DEFINE FIELD IF NOT EXISTS batch_day ON grouping_run TYPE string;
    DEFINE FIELD IF NOT EXISTS bucket ON grouping_run TYPE string;
    DEFINE FIELD IF NOT EXISTS fingerprints ON grouping_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS controls ON grouping_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS unmatched ON grouping_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS expected ON grouping_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS reportable ON grouping_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS concurrency ON grouping_run TYPE int;
    DEFINE FIELD IF NOT EXISTS relatedness ON grouping_run TYPE float;
    -- succeeded | failed | empty
    DEFINE FIELD IF NOT EXISTS status ON grouping_run TYPE string;
    DEFINE FIELD IF NOT EXISTS failure ON grouping_run TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS started_at ON grouping_run TYPE datetime;
    DEFINE FIELD IF NOT EXISTS finished_at ON grouping_run TYPE datetime;

    DEFINE INDEX IF NOT EXISTS grouping_run_started ON grouping_run FIELDS started_at;
    DEFINE INDEX IF NOT EXISTS grouping_run_batch_day ON grouping_run FIELDS batch_day;
`
