// Package github is a small GitHub REST client. It fetches a pull request's
// diff for review and posts the finished report back as a PR comment.
// Credentials come from GITHUB_TOKEN; GITHUB_API_URL selects an Enterprise
// host.
package github
