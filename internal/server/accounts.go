package server

import (
	"context"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AccountLister is the part of auth.Manager the accounts tool needs.
type AccountLister interface {
	ListAccounts() map[string]string
}

// AccountInfo is one configured account.
type AccountInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// AccountsOutput is the result of list_accounts.
type AccountsOutput struct {
	Accounts []AccountInfo `json:"accounts"`
	Message  string        `json:"message,omitempty"`
}

// RegisterAccountsListTool registers the list_accounts tool on the given server.
func RegisterAccountsListTool(s *Server, mgr AccountLister) {
	AddTool(s, &mcp.Tool{
		Name:        "list_accounts",
		Description: "List all configured Google accounts. Use this to discover available account names for the account argument of other tools.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, AccountsOutput, error) {
		accounts := mgr.ListAccounts()
		out := AccountsOutput{Accounts: make([]AccountInfo, 0, len(accounts))}
		for name, email := range accounts {
			out.Accounts = append(out.Accounts, AccountInfo{Name: name, Email: email})
		}
		slices.SortFunc(out.Accounts, func(a, b AccountInfo) int {
			return strings.Compare(a.Name, b.Name)
		})
		if len(out.Accounts) == 0 {
			out.Message = "No accounts configured. Run 'calendar-mcp auth add <name>' to add one."
		}
		return nil, out, nil
	})
}
