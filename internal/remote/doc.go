// Package remote is the thin tenant-keyed key-value service a device syncs
// against, together with the HTTP client the syncer uses to reach it.
//
// The service stores one database body per tenant with a server-assigned
// revision. The first save of a tenant gets rev 1 and every later successful
// save gets exactly the previous rev plus one. Tenants listed as blocked get
// {ok:false, blocked:true} from every endpoint and are never written; callers
// treat that as "do not write", not as a transport failure.
//
// The token in a save request is opaque. It is recorded with the body and
// never checked.
package remote
