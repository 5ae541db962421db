package storage

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	cryptoTableName = "crypto"
	pricesTableName = "prices"
)

var (
	// cryptoColumns holds the columns of the "crypto" table, one row per tracked coin.
	cryptoColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "symbol", Type: field.TypeString, Unique: true},
		{Name: "gecko_id", Type: field.TypeString},
	}
	cryptoTable = &schema.Table{
		Name:       cryptoTableName,
		Columns:    cryptoColumns,
		PrimaryKey: []*schema.Column{cryptoColumns[0]},
	}
	// pricesColumns holds the columns of the "prices" table, the price history.
	pricesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "price", Type: field.TypeFloat64},
		{Name: "recorded_at", Type: field.TypeTime},
		{Name: "crypto_id", Type: field.TypeInt},
	}
	pricesTable = &schema.Table{
		Name:       pricesTableName,
		Columns:    pricesColumns,
		PrimaryKey: []*schema.Column{pricesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "prices_crypto",
				Columns:    []*schema.Column{pricesColumns[3]},
				RefColumns: []*schema.Column{cryptoColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "prices_recorded_at",
				Unique:  false,
				Columns: []*schema.Column{pricesColumns[2]},
			},
		},
	}
	tables = []*schema.Table{cryptoTable, pricesTable}
)

func init() {
	pricesTable.ForeignKeys[0].RefTable = cryptoTable
}
