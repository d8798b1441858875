// Package service wires the worker to the outside world.
//
// The Supervisor scans a drop directory laid out as <source>/<product id>/<file>
// and drives every file through the worker:
//
//	Supervisor                 Worker                     collaborators
//	    |  FetchMedia ----------->|  DirFetcher.Fetch -------->| os.Root
//	    |<--------- FetchSucceeded|
//	    |  UploadMedia ---------->|  Upload (one at a time) -->| OSRootUploader / HTTPUploader
//	    |<-------- UploadSucceeded|
//	    |<-- ProductUploadsCompleted
//	    |  UpdateProduct -------->|  FetchProduct/UpdateProduct>| store
//	    |<- ProductUpdateSucceeded|
//	    |<--------- ServiceStopped|
//
// In manual mode the Supervisor ends with ServiceStopped. In timer mode a
// gocron job triggers rescans and files already handled are skipped unless
// they failed.
//
// ProcessController starts and stops an optional helper process while the
// worker is busy, WriteNotifier prints progress lines.
package service
