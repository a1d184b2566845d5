// Package drive provides a client for uploading files to Google Drive.
//
// The client only needs the drive.file scope: it creates files and reads
// back their ID and web view link. Authorization is supplied by the caller
// through client options.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, option.WithHTTPClient(httpClient))
//	if err != nil {
//	    return err
//	}
//
//	file, err := client.UploadFile(ctx, "photo.jpg", bytes.NewReader(content), &drive.UploadOptions{
//	    MimeType:      "image/jpeg",
//	    ParentFolders: []string{folderID},
//	})
package drive
