package nl2sql

import (
	"fmt"
	"strings"
)

const DefaultDialect = "PostgreSQL"

// ComposeMessages builds the system and user messages for one translation.
func ComposeMessages(snapshot string, question string, dialect string) []Message {
	if strings.TrimSpace(dialect) == "" {
		dialect = DefaultDialect
	}
	system := fmt.Sprintf(
		"You are an expert SQL analyst with up-to-date knowledge of %[1]s. "+
			"Given a user's question and the following database schema, generate a single syntactically correct, read-only SQL query for %[1]s. "+
			"Return only the SQL query, no explanation.\n"+
			"\n"+
			"Schema:\n"+
			"%[2]s\n"+
			"\n"+
			"The database is %[1]s. Use %[1]s SQL syntax. Start the query with SELECT or WITH.",
		dialect,
		snapshot,
	)
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: question},
	}
}
