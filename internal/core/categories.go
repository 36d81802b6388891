package core

// Category is a named bucket for transactions with a display color.
type Category struct {
	Name  string
	Type  TransactionType
	Color string
}

// Categories assigned to ledger entries derived from other entities.
const (
	CategoryReceivables   = "Accounts Receivable"
	CategorySavings       = "Savings"
	CategoryFixedExpenses = "Fixed Expenses"
)

// DefaultCategories is the category set offered to new users.
var DefaultCategories = []Category{
	{Name: "Salary", Type: Income, Color: "#10B981"},
	{Name: "Freelance", Type: Income, Color: "#3B82F6"},
	{Name: "Investments", Type: Income, Color: "#8B5CF6"},
	{Name: "Bonuses", Type: Income, Color: "#F59E0B"},
	{Name: "Other income", Type: Income, Color: "#6B7280"},
	{Name: "Food", Type: Expense, Color: "#EF4444"},
	{Name: "Transport", Type: Expense, Color: "#F97316"},
	{Name: "Entertainment", Type: Expense, Color: "#EC4899"},
	{Name: "Health", Type: Expense, Color: "#14B8A6"},
	{Name: "Utilities", Type: Expense, Color: "#6366F1"},
	{Name: "Shopping", Type: Expense, Color: "#84CC16"},
	{Name: "Other expenses", Type: Expense, Color: "#6B7280"},
}

// CategoriesFor returns the default categories of one transaction type.
func CategoriesFor(typ TransactionType) []Category {
	var out []Category
	for _, c := range DefaultCategories {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}
