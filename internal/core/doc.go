// Package core orchestrates file-cleaning jobs.
//
// The package sits between the transport layer and the pipeline packages. It
// can be used by web handlers, the CLI, or tests without modification.
//
// # Jobs
//
// [Service.Process] takes a [Request] naming a URL and a filename and runs
// the job as a sequence of phases:
//
//  1. downloading: fetch the URL with size and time limits
//  2. validating: reject HTML pages served in place of a spreadsheet
//  3. staging: write the bytes to temp_input_{id}_{name}
//  4. loading: parse CSV, xlsx, xls or xlsb into a dataset
//  5. transforming: drop duplicates and empty rows, rename columns, trim cells
//  6. persisting: write cleaned_{id}.xlsx
//  7. cleaning_up: delete the staged input
//
// The first failure ends the job. The staged input is deleted whether the
// job succeeds, fails or is cancelled. [Service.Preview] runs the first four
// phases and returns the leading rows without cleaning.
//
// # Concurrency
//
// Every job holds a slot from a [JobLimiter]. When all slots are busy a job
// waits briefly and then fails with [ErrTooManyJobs], which maps to HTTP 503.
// [Service.WaitForJobs] drains running jobs on shutdown.
//
// # Expiry
//
// [Service.StartSweeper] deletes files older than the retention window on a
// fixed interval and purges old job history when a database is configured.
//
// # Error Handling
//
// Failures carry an [apperror.Kind]. Callers map them to status codes and
// user messages with the apperror package.
package core
