package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/netx"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// imageKeyField is the product field holding the object key of its image.
const imageKeyField = "imageKey"

// readFile is a test seam for os.ReadFile.
var readFile = os.ReadFile

// Image uploads the file at path as the image of a product and records the
// object key on the product as a pending change. The upload itself needs
// the server; the product update then syncs like any other edit.
func (a *App) Image(ctx context.Context, productID, path string) error {
	if err := a.requireServer(); err != nil {
		return err
	}
	if err := a.authorize(tables.Products, ""); err != nil {
		return err
	}

	product, err := a.replica.Get(ctx, tables.Products, productID)
	if err != nil {
		return err
	}

	data, err := readFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	contentType := http.DetectContentType(data)

	a.transport.SetAccessToken(a.session.AccessToken)
	upload, err := a.transport.Presign(ctx, &api.PresignRequest{ProductID: productID, ContentType: contentType})
	if err != nil {
		return err
	}

	if err := netx.UploadToPresignedURL(ctx, a.httpClient, upload.URL, contentType, data); err != nil {
		return err
	}

	product.Set(imageKeyField, upload.Key)
	if _, err := a.replica.Save(ctx, tables.Products, product); err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("Uploaded %d bytes as %s", len(data), upload.Key))
	return nil
}
