// Package remote implements the network collaborators of the admission
// pipeline: an HTTPS image fetcher and a catbox.moe uploader.
//
// Neither type applies admission policy beyond what HTTP itself needs. URL
// allow-listing, content-type and size checks belong to the pipeline; the
// fetcher only re-applies the caller-supplied URL check to redirect targets,
// because redirects happen inside net/http where the pipeline cannot see them.
package remote
