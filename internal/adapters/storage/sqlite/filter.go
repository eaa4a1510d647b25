package sqlite

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// sqlCondition is one WHERE fragment with positional parameters.
type sqlCondition struct {
	Clause string
	Params []any
}

// filterColumns maps AIP-160 identifiers to opportunities columns.
var filterColumns = map[string]string{
	"title":                    "title",
	"status":                   "status",
	"priority":                 "priority",
	"sales_manager_id":         "sales_manager_id",
	"customer_id":              "customer_id",
	"customer_name":            "customer_name",
	"region_id":                "region_id",
	"annual_recurring_revenue": "annual_recurring_revenue",
	"selected_architect_id":    "selected_architect_id",
	"created_at":               "created_at",
	"updated_at":               "updated_at",
}

// filterDeclarations declares the identifiers accepted in opportunity filters.
func filterDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("title", filtering.TypeString),
		filtering.DeclareIdent("status", filtering.TypeString),
		filtering.DeclareIdent("priority", filtering.TypeString),
		filtering.DeclareIdent("sales_manager_id", filtering.TypeString),
		filtering.DeclareIdent("customer_id", filtering.TypeString),
		filtering.DeclareIdent("customer_name", filtering.TypeString),
		filtering.DeclareIdent("region_id", filtering.TypeString),
		filtering.DeclareIdent("annual_recurring_revenue", filtering.TypeFloat),
		filtering.DeclareIdent("selected_architect_id", filtering.TypeString),
		filtering.DeclareIdent("created_at", filtering.TypeTimestamp),
		filtering.DeclareIdent("updated_at", filtering.TypeTimestamp),
	)
}

// parseFilter translates an AIP-160 expression into a SQL condition.
// An empty expression yields an empty condition.
func parseFilter(raw string) (sqlCondition, error) {
	if strings.TrimSpace(raw) == "" {
		return sqlCondition{}, nil
	}
	decls, err := filterDeclarations()
	if err != nil {
		return sqlCondition{}, fmt.Errorf("create filter declarations: %w", err)
	}
	filter, err := filtering.ParseFilterString(raw, decls)
	if err != nil {
		return sqlCondition{}, fmt.Errorf("parse filter: %w", err)
	}
	return translateExpr(filter.CheckedExpr.GetExpr())
}

func translateExpr(e *expr.Expr) (sqlCondition, error) {
	if e == nil {
		return sqlCondition{}, nil
	}
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return sqlCondition{}, fmt.Errorf("unsupported filter expression %T", e.GetExprKind())
	}
	args := call.CallExpr.GetArgs()
	switch fn := call.CallExpr.GetFunction(); fn {
	case filtering.FunctionAnd:
		return joinConditions(args, "AND")
	case filtering.FunctionOr:
		return joinConditions(args, "OR")
	case filtering.FunctionNot:
		if len(args) != 1 {
			return sqlCondition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := translateExpr(args[0])
		if err != nil {
			return sqlCondition{}, err
		}
		return sqlCondition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
	case filtering.FunctionEquals:
		return translateComparison(args, "=")
	case filtering.FunctionNotEquals:
		return translateComparison(args, "!=")
	case filtering.FunctionLessThan:
		return translateComparison(args, "<")
	case filtering.FunctionLessEquals:
		return translateComparison(args, "<=")
	case filtering.FunctionGreaterThan:
		return translateComparison(args, ">")
	case filtering.FunctionGreaterEquals:
		return translateComparison(args, ">=")
	case filtering.FunctionHas:
		return translateHas(args)
	default:
		return sqlCondition{}, fmt.Errorf("unsupported filter function %q", fn)
	}
}

func joinConditions(args []*expr.Expr, op string) (sqlCondition, error) {
	if len(args) < 2 {
		return sqlCondition{}, fmt.Errorf("%s requires at least 2 arguments", op)
	}
	clauses := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		c, err := translateExpr(arg)
		if err != nil {
			return sqlCondition{}, err
		}
		clauses = append(clauses, c.Clause)
		params = append(params, c.Params...)
	}
	return sqlCondition{
		Clause: "(" + strings.Join(clauses, " "+op+" ") + ")",
		Params: params,
	}, nil
}

func translateComparison(args []*expr.Expr, op string) (sqlCondition, error) {
	if len(args) != 2 {
		return sqlCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	column, err := filterColumn(args[0])
	if err != nil {
		return sqlCondition{}, err
	}
	value, err := filterValue(args[1])
	if err != nil {
		return sqlCondition{}, err
	}
	return sqlCondition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}

// translateHas maps `field:value` to a case-insensitive substring match.
func translateHas(args []*expr.Expr) (sqlCondition, error) {
	if len(args) != 2 {
		return sqlCondition{}, fmt.Errorf("has requires 2 arguments")
	}
	column, err := filterColumn(args[0])
	if err != nil {
		return sqlCondition{}, err
	}
	value, err := filterValue(args[1])
	if err != nil {
		return sqlCondition{}, err
	}
	text, ok := value.(string)
	if !ok {
		return sqlCondition{}, fmt.Errorf("has on %s requires a string value", column)
	}
	return sqlCondition{
		Clause: fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", column),
		Params: []any{"%" + escapeLike(strings.ToLower(text)) + "%"},
	}, nil
}

func filterColumn(e *expr.Expr) (string, error) {
	ident, ok := e.GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return "", fmt.Errorf("expected identifier, got %T", e.GetExprKind())
	}
	column, ok := filterColumns[ident.IdentExpr.GetName()]
	if !ok {
		return "", fmt.Errorf("unknown filter field %q", ident.IdentExpr.GetName())
	}
	return column, nil
}

func filterValue(e *expr.Expr) (any, error) {
	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_ConstExpr:
		switch c := kind.ConstExpr.GetConstantKind().(type) {
		case *expr.Constant_StringValue:
			return c.StringValue, nil
		case *expr.Constant_Int64Value:
			return c.Int64Value, nil
		case *expr.Constant_DoubleValue:
			return c.DoubleValue, nil
		case *expr.Constant_BoolValue:
			return c.BoolValue, nil
		default:
			return nil, fmt.Errorf("unsupported constant %T", c)
		}
	case *expr.Expr_CallExpr:
		if kind.CallExpr.GetFunction() == filtering.FunctionTimestamp && len(kind.CallExpr.GetArgs()) == 1 {
			return timestampValue(kind.CallExpr.GetArgs()[0])
		}
		return nil, fmt.Errorf("unsupported function %q in value position", kind.CallExpr.GetFunction())
	default:
		return nil, fmt.Errorf("expected constant, got %T", kind)
	}
}

// timestampValue renders timestamp("...") in the stored column format.
func timestampValue(e *expr.Expr) (string, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("timestamp argument must be a constant string")
	}
	s, ok := c.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, s.StringValue)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp %q", s.StringValue)
	}
	return ts(t), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
