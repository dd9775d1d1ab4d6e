package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PGXTracer is a pgx.QueryTracer. Spans are named after the sqlc query
// ("db CreatePayment") so payment state changes are easy to find in a trace.
type PGXTracer struct{}

type pgxSpanKey struct{}

func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	name, op := queryName(data.SQL)
	ctx, span := otel.Tracer("github.com/noah-isme/farmbridge/internal/db").Start(ctx, "db "+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", op),
			attribute.String("db.query.summary", name),
		),
	)
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(pgxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, "query failed")
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

// queryName returns the sqlc query name from a "-- name: X :kind" header,
// falling back to the leading SQL keyword, plus that keyword.
func queryName(sql string) (name, op string) {
	sql = strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(sql, "-- name:"); ok {
		header, body, _ := strings.Cut(rest, "\n")
		if fields := strings.Fields(header); len(fields) > 0 {
			name = fields[0]
		}
		sql = strings.TrimSpace(body)
	}
	if fields := strings.Fields(sql); len(fields) > 0 {
		op = strings.ToUpper(fields[0])
	}
	if name == "" {
		name = op
	}
	if name == "" {
		name = "query"
	}
	return name, op
}
