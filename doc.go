// Package tap implements the merchant side of trusted-agent commerce:
// authenticating autonomous agents through detached HTTP message signatures
// and settling delegated machine payments without handling raw card data on
// every hop.
//
// # Agent authentication
//
// Agents sign requests with [httpsig.Signer] (or transparently with
// [httpsig.Transport]) and send Signature-Agent, Signature-Input, and
// Signature headers. On the merchant, [WithSignatureVerifier] installs
// middleware that rebuilds the signature base from the live request and
// rejects anything a configured [httpsig.Verifier] does not trust.
//
// # Payments
//
// Use [NewPaymentHandler] with an [Orchestrator] (or your own
// [PaymentService]) to expose the two-phase payment handshake over net/http:
// cart finalize quotes the cart and answers 402 Payment Required with a
// payment session, and fulfill redeems card details against that session.
// Agents holding a delegation token can instead settle in a single call
// through the x402 checkout route, which clears payment through an external
// facilitator and only materializes the order once a settlement receipt is
// confirmed.
package tap
