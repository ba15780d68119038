package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "scholarly_"

const (
	TABLE_KNOWLEDGE_NODE         = TableName("knowledge_nodes")
	TABLE_KNOWLEDGE_RELATIONSHIP = TableName("knowledge_relationships")
	TABLE_SCHEMA_MIGRATIONS      = TableName("schema_migrations")
)
