package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/shopkeeper/internal/server/admin"
)

func main() {
	os.Exit(admin.Execute(context.Background()))
}
