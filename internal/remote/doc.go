/*
Package remote is the only way out to the network.

Every request to a service goes through that service's Gate. A gate sends one
request at a time and keeps a minimum spacing between requests, salted by a
random factor. After a burst of sequential requests it sleeps for a cooldown.
Responses are classified:

  - status other than 200, or a JSON body carrying "error": retried, then
    abandoned with ErrRetryable
  - image/gif content: ErrBadCredentials
  - an HTML page mentioning "Your IP address": ErrBanned

The last two are fatal (IsFatal) and are returned without retrying; callers
abort their batch. A circuit breaker stops hammering a service that keeps
failing.

CatalogClient performs image hash searches and metadata API lookups against
the external catalog. AlternateClient searches the alternate catalog by title
and reads the external catalog link from its archive pages.
*/
package remote
