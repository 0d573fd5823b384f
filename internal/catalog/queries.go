package catalog

const listStoresQuery = `
query ListStores($channel: String!, $first: Int!, $after: String) {
  collections(first: $first, after: $after, channel: $channel) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        slug
        name
        description
        backgroundImage { url }
      }
    }
  }
}`

const listStoreCatalogQuery = `
query ListStoreCatalog($storeId: ID!, $channel: String!, $first: Int!, $after: String) {
  products(first: $first, after: $after, channel: $channel, filter: { collections: [$storeId] }) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        name
        slug
        description
        category { id name }
        thumbnail { url }
        pricing {
          priceRange { start { gross { amount currency } } }
        }
        variants {
          id
          name
          sku
          quantityAvailable
          pricing { price { gross { amount currency } } }
        }
      }
    }
  }
}`

const createOrderDraftMutation = `
mutation CreateOrderDraft($input: DraftOrderCreateInput!) {
  draftOrderCreate(input: $input) {
    order { id number redirectUrl }
    errors { field message code }
  }
}`
