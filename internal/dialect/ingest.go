package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gerhard-ee/klondike/pkg/table"
)

// ErrUnsupportedFormat is returned when a warehouse cannot bulk load a file format
var ErrUnsupportedFormat = errors.New("unsupported ingest format")

type ingestScripts interface {
	csv(source, target string, sep rune) (string, error)
	parquet(source, target string) (string, error)
}

// CSVIngestScript generates a script bulk loading a delimited file with a
// header row into target
func (d *Dialect) CSVIngestScript(source string, target table.Name, sep rune) (string, error) {
	if d == nil || d.ingest == nil {
		return "", fmt.Errorf("no dialect configured for ingestion")
	}
	if source == "" {
		return "", fmt.Errorf("ingest source is required")
	}
	return d.ingest.csv(source, d.QualifiedName(target), sep)
}

// ParquetIngestScript generates a script bulk loading a Parquet file into target
func (d *Dialect) ParquetIngestScript(source string, target table.Name) (string, error) {
	if d == nil || d.ingest == nil {
		return "", fmt.Errorf("no dialect configured for ingestion")
	}
	if source == "" {
		return "", fmt.Errorf("ingest source is required")
	}
	return d.ingest.parquet(source, d.QualifiedName(target))
}

func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type snowflakeIngest struct{}

func (snowflakeIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf(`COPY INTO %s
FROM %s
FILE_FORMAT = (
    TYPE = 'CSV'
    FIELD_DELIMITER = %s
    SKIP_HEADER = 1
    FIELD_OPTIONALLY_ENCLOSED_BY = '"'
    EMPTY_FIELD_AS_NULL = TRUE
)
ON_ERROR = 'CONTINUE';`, target, literal(source), literal(string(sep))), nil
}

func (snowflakeIngest) parquet(source, target string) (string, error) {
	return fmt.Sprintf(`COPY INTO %s
FROM %s
FILE_FORMAT = (TYPE = 'PARQUET')
MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE
ON_ERROR = 'CONTINUE';`, target, literal(source)), nil
}

type bigqueryIngest struct{}

func (bigqueryIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf(`LOAD DATA INTO %s
FROM FILES (
    format = 'CSV',
    field_delimiter = %s,
    skip_leading_rows = 1,
    uris = [%s]
);`, target, literal(string(sep)), literal(source)), nil
}

func (bigqueryIngest) parquet(source, target string) (string, error) {
	return fmt.Sprintf(`LOAD DATA INTO %s
FROM FILES (
    format = 'PARQUET',
    uris = [%s]
);`, target, literal(source)), nil
}

type databricksIngest struct{}

func (databricksIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf(`COPY INTO %s
FROM %s
FILEFORMAT = CSV
FORMAT_OPTIONS ('header' = 'true', 'sep' = %s, 'inferSchema' = 'true')
COPY_OPTIONS ('mergeSchema' = 'true');`, target, literal(source), literal(string(sep))), nil
}

func (databricksIngest) parquet(source, target string) (string, error) {
	return fmt.Sprintf(`COPY INTO %s
FROM %s
FILEFORMAT = PARQUET
COPY_OPTIONS ('mergeSchema' = 'true');`, target, literal(source)), nil
}

type postgresIngest struct{}

func (postgresIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf("COPY %s FROM %s WITH (FORMAT csv, HEADER true, DELIMITER %s);",
		target, literal(source), literal(string(sep))), nil
}

func (postgresIngest) parquet(source, target string) (string, error) {
	return "", fmt.Errorf("%w: postgres cannot COPY parquet files", ErrUnsupportedFormat)
}

type redshiftIngest struct{}

func (redshiftIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf(`COPY %s
FROM %s
IAM_ROLE default
FORMAT AS CSV
DELIMITER %s
IGNOREHEADER 1
EMPTYASNULL;`, target, literal(source), literal(string(sep))), nil
}

func (redshiftIngest) parquet(source, target string) (string, error) {
	return fmt.Sprintf(`COPY %s
FROM %s
IAM_ROLE default
FORMAT AS PARQUET;`, target, literal(source)), nil
}

type mssqlIngest struct{}

func (mssqlIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf(`BULK INSERT %s
FROM %s
WITH (
    FORMAT = 'CSV',
    FIRSTROW = 2,
    FIELDTERMINATOR = %s,
    ROWTERMINATOR = '0x0a'
);`, target, literal(source), literal(string(sep))), nil
}

func (mssqlIngest) parquet(source, target string) (string, error) {
	return fmt.Sprintf(`INSERT INTO %s
SELECT * FROM OPENROWSET(BULK %s, FORMAT = 'PARQUET') AS rows;`, target, literal(source)), nil
}

type duckdbIngest struct{}

func (duckdbIngest) csv(source, target string, sep rune) (string, error) {
	return fmt.Sprintf("COPY %s FROM %s (FORMAT CSV, HEADER true, DELIMITER %s);",
		target, literal(source), literal(string(sep))), nil
}

func (duckdbIngest) parquet(source, target string) (string, error) {
	return fmt.Sprintf("COPY %s FROM %s (FORMAT PARQUET);", target, literal(source)), nil
}
